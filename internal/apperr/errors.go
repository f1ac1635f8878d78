// Package apperr defines the typed error taxonomy shared by the approval
// workflow engine and the HTTP layer. Callers classify failures with
// errors.Is against the sentinel values.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed or incomplete requests.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the actor lacks the required
	// capability or attempts to approve their own request.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when operating on a request that already
	// reached a terminal status.
	ErrConflict = errors.New("conflict")

	// ErrTransport is returned for broker/storage transport failures the
	// caller may retry.
	ErrTransport = errors.New("transport error")
)

// Error attaches a human-readable message to one of the sentinel values.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a formatted ErrValidation.
func Validation(format string, args ...any) error {
	return &Error{Err: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden builds a formatted ErrForbidden.
func Forbidden(format string, args ...any) error {
	return &Error{Err: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a formatted ErrNotFound.
func NotFound(format string, args ...any) error {
	return &Error{Err: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a formatted ErrConflict.
func Conflict(format string, args ...any) error {
	return &Error{Err: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Transport builds a formatted ErrTransport.
func Transport(format string, args ...any) error {
	return &Error{Err: ErrTransport, Message: fmt.Sprintf(format, args...)}
}
