package imamcp

import (
	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/errors"
)

// Re-export error types from the internal package.

// IMAError is the base interface for all errors produced by this module.
type IMAError = errors.IMAError

// APIStatusError indicates a non-200 HTTP response from the upstream API.
type APIStatusError = errors.APIStatusError

// UpstreamError indicates a structured error envelope from the upstream.
type UpstreamError = errors.UpstreamError

// SessionInitError indicates the QA session could not be established.
type SessionInitError = errors.SessionInitError

// NotStreamError indicates the QA endpoint answered with something other
// than an SSE stream.
type NotStreamError = errors.NotStreamError

// ParseError indicates a stream line could not be decoded.
type ParseError = errors.ParseError

// Re-export sentinel errors from the internal packages.
var (
	// ErrEmptyQuestion indicates an empty or whitespace-only question.
	ErrEmptyQuestion = errors.ErrEmptyQuestion

	// ErrAuthFailed indicates a valid token could not be obtained.
	ErrAuthFailed = errors.ErrAuthFailed

	// ErrMissingCredentials indicates the required credential headers are
	// not configured.
	ErrMissingCredentials = errors.ErrMissingCredentials

	// ErrStreamIdle indicates the SSE stream went silent past the idle
	// window.
	ErrStreamIdle = errors.ErrStreamIdle

	// ErrMissingXIMACookie indicates IMA_X_IMA_COOKIE is not set.
	ErrMissingXIMACookie = config.ErrMissingXIMACookie

	// ErrMissingXIMABkn indicates IMA_X_IMA_BKN is not set.
	ErrMissingXIMABkn = config.ErrMissingXIMABkn
)

// IsAuthError reports whether err represents an authentication failure that
// a token refresh might repair.
func IsAuthError(err error) bool {
	return errors.IsAuthError(err)
}
