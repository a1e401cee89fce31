package errors

import (
	"errors"
	"fmt"
)

// IMAError is the base interface for all errors produced by this module.
type IMAError interface {
	error
	IsIMAError() bool
}

// Compile-time verification that all error types implement IMAError.
var (
	_ IMAError = (*APIStatusError)(nil)
	_ IMAError = (*UpstreamError)(nil)
	_ IMAError = (*SessionInitError)(nil)
	_ IMAError = (*NotStreamError)(nil)
	_ IMAError = (*ParseError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrEmptyQuestion indicates an empty or whitespace-only question.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrAuthFailed indicates a valid token could not be obtained.
	ErrAuthFailed = errors.New("authentication failed: unable to obtain valid token")

	// ErrMissingCredentials indicates the required credential headers are not
	// configured. Every upstream call needs x-ima-cookie and x-ima-bkn.
	ErrMissingCredentials = errors.New("missing credentials: IMA_X_IMA_COOKIE and IMA_X_IMA_BKN must be set")

	// ErrNoSessionID indicates the upstream accepted session init but returned
	// no session id.
	ErrNoSessionID = errors.New("no session id in init response")

	// ErrStreamIdle indicates the SSE stream went silent past the idle window.
	// The engine records it as a diagnostic; messages parsed before the
	// timeout remain valid.
	ErrStreamIdle = errors.New("stream idle timeout")
)

// APIStatusError indicates a non-200 HTTP response from the upstream API.
// Body holds an excerpt of the response so classification can see upstream
// text that arrived without structure.
type APIStatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// IsIMAError implements IMAError.
func (e *APIStatusError) IsIMAError() bool { return true }

// UpstreamError indicates the upstream API answered with its JSON error
// envelope instead of a result.
type UpstreamError struct {
	Code int
	Msg  string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API returned error (code: %d): %s", e.Code, e.Msg)
}

// IsIMAError implements IMAError.
func (e *UpstreamError) IsIMAError() bool { return true }

// SessionInitError indicates session initialization was rejected upstream.
type SessionInitError struct {
	Code int
	Msg  string
	Err  error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("session initialization failed (code: %d): %s", e.Code, e.Msg)
}

func (e *SessionInitError) Unwrap() error {
	return e.Err
}

// IsIMAError implements IMAError.
func (e *SessionInitError) IsIMAError() bool { return true }

// NotStreamError indicates the QA endpoint answered with a non-SSE payload.
// An HTML login page or a JSON envelope here almost always means the
// credentials were rejected.
type NotStreamError struct {
	ContentType string
	Body        string
}

func (e *NotStreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("expected SSE response, got %s with empty body", e.ContentType)
	}

	return fmt.Sprintf("expected SSE response, got %s: %s", e.ContentType, e.Body)
}

// IsIMAError implements IMAError.
func (e *NotStreamError) IsIMAError() bool { return true }

// ParseError indicates a single stream line could not be parsed. The engine
// counts these; they are never fatal to the stream.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse stream line: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsIMAError implements IMAError.
func (e *ParseError) IsIMAError() bool { return true }
