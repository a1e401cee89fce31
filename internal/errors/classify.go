package errors

import (
	"errors"
	"strings"
)

// Upstream codes that mean the login state is stale or invalid.
const (
	CodeLoginExpired = 600001
	CodeLoginFailed  = 600002
	CodeTokenInvalid = 600003
)

// authMarkers identify auth failures in error text that crossed the wire
// without structure. All entries are lowercase; the upstream mixes English
// and Chinese in its messages. This list is a documented heuristic only,
// typed discriminants are checked first.
var authMarkers = []string{
	"session initialization failed",
	"登录过期",
	"登录失败",
	"authentication failed",
	"认证失败",
	"code: 600001",
	"code: 600002",
	"code: 600003",
	"token expired",
	"会话已过期",
	"请重新登录",
	"unauthorized",
	"401",
	"expected sse response",
}

// IsAuthError reports whether err represents an authentication failure that
// a token refresh might repair. Typed discriminants are authoritative; the
// substring scan is a fallback for unstructured upstream text.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrAuthFailed) {
		return true
	}

	var statusErr *APIStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 401 {
		return true
	}

	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		switch upstreamErr.Code {
		case CodeLoginExpired, CodeLoginFailed, CodeTokenInvalid:
			return true
		}
	}

	// Any init rejection is treated as an auth problem: the endpoint only
	// refuses sessions when the login state is unusable.
	var initErr *SessionInitError
	if errors.As(err, &initErr) {
		return true
	}

	var notStream *NotStreamError
	if errors.As(err, &notStream) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
