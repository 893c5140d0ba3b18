package chat

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDone is returned by Stream.Next after the terminal chunk.
var ErrDone = errors.New("chat: done")

// Kind classifies an error for recovery policy.
type Kind string

const (
	// KindValidation is a bad construction-time configuration. Fatal.
	KindValidation Kind = "validation"

	// KindAPI is a model or token endpoint failure. Recoverable; the
	// conversation continues.
	KindAPI Kind = "api"

	// KindTransport is a missing response body or an unexpectedly closed
	// stream.
	KindTransport Kind = "transport"

	// KindUnknown wraps any unrecognized underlying failure.
	KindUnknown Kind = "unknown"
)

// Stable error codes.
const (
	CodeMissingAPIConfig   = "MISSING_API_CONFIG"
	CodeInvalidAPIKey      = "INVALID_API_KEY"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeAPIError           = "API_ERROR"
	CodeEmptyResponse      = "EMPTY_RESPONSE"
	CodeStreamClosed       = "STREAM_CLOSED"
)

// Error is the single tagged error type all provider and transport failures
// normalize to.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("chat: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// apiError maps a non-2xx endpoint status to the taxonomy.
func apiError(status int, msg string) *Error {
	code := CodeAPIError
	switch {
	case status == http.StatusUnauthorized:
		code = CodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		code = CodeRateLimited
	case status >= http.StatusInternalServerError:
		code = CodeServiceUnavailable
	}
	if msg == "" {
		msg = fmt.Sprintf("endpoint returned status %d", status)
	}
	return &Error{Kind: KindAPI, Code: code, Message: msg}
}

// wrapErr normalizes an arbitrary error into the taxonomy, passing tagged
// errors through untouched.
func wrapErr(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnknown, Code: CodeAPIError, Message: err.Error(), Cause: err}
}
