// Package apperr defines the error kinds reported to API callers.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for the caller.
type Kind string

const (
	Internal              Kind = "internal"
	Validation            Kind = "validation"
	Unauthorized          Kind = "unauthorized"
	Forbidden             Kind = "forbidden"
	NotFound              Kind = "not_found"
	Conflict              Kind = "conflict"
	InvalidOrExpiredToken Kind = "invalid_or_expired_token"
	TokenMismatch         Kind = "token_mismatch"
	NotEnrolled           Kind = "not_enrolled"
	DuplicateAttendance   Kind = "duplicate_attendance"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case Validation, InvalidOrExpiredToken, TokenMismatch:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden, NotEnrolled:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict, DuplicateAttendance:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain failure with a message safe to show to the caller.
// Err carries internal detail and is never rendered.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an error of the given kind carrying cause as internal detail.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf reports the kind of err; errors that are not *Error are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "Server error"
}
