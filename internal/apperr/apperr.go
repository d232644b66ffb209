// Package apperr holds the error kinds shared by the room, catalog, ledger,
// dashboard and account services. Handlers map a kind to an HTTP status with
// response.Error.
package apperr

import (
	"errors"
	"fmt"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrActivation = errors.New("activation failed")
)

// Error is a kinded error with a message safe to show to clients.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Unwrap returns the kind so errors.Is(err, ErrNotFound) works.
func (e *Error) Unwrap() error { return e.kind }

func newf(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Validation reports missing or malformed input.
func Validation(format string, args ...any) error { return newf(ErrValidation, format, args...) }

// Conflict reports a uniqueness clash.
func Conflict(format string, args ...any) error { return newf(ErrConflict, format, args...) }

// NotFound reports an unknown entity, e.g. NotFound("room").
func NotFound(what string) error { return newf(ErrNotFound, "%s not found", what) }

// Forbidden reports a failed authorization check.
func Forbidden(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

// Activation reports a bad, expired or reused activation link.
func Activation(format string, args ...any) error { return newf(ErrActivation, format, args...) }

// Message returns the client-facing message of a kinded error, or fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return fallback
}
