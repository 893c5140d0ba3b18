package voice

import (
	"errors"
	"fmt"
)

// Stable voice error codes.
const (
	CodeMissingToken        = "MISSING_TOKEN"
	CodeTokenFetchFailed    = "TOKEN_FETCH_FAILED"
	CodeMicPermissionDenied = "MIC_PERMISSION_DENIED"
	CodeVoiceError          = "VOICE_ERROR"
)

// ErrPermissionDenied is returned by Capture and Recognizer implementations
// when the user denied microphone access. The manager maps it to
// MIC_PERMISSION_DENIED.
var ErrPermissionDenied = errors.New("voice: permission denied")

// Error is the single voice-domain error kind. Cause carries the underlying
// failure for diagnostics.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("voice: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// wrapVoiceErr normalizes an arbitrary failure into a voice error.
func wrapVoiceErr(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrPermissionDenied) {
		return &Error{Code: CodeMicPermissionDenied, Message: "microphone access denied", Cause: err}
	}
	return &Error{Code: CodeVoiceError, Message: err.Error(), Cause: err}
}
