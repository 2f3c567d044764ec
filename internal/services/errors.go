package services

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced by the services. Handlers map them onto HTTP statuses
// with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrFormat       = fmt.Errorf("invalid data format: %w", ErrValidation)
	ErrConflict     = errors.New("already exists")
	ErrAuth         = errors.New("invalid credentials")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failure")
)

// ValidationError describes input that failed validation. Missing lists the
// required fields that were absent, in the order they are checked.
type ValidationError struct {
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "Missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// FormatError reports a value that is present but cannot be parsed.
type FormatError struct {
	Field string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Invalid data format: %s: %v", e.Field, e.Err)
}

func (e *FormatError) Unwrap() []error {
	return []error{ErrFormat, e.Err}
}

// Error is a service failure of a given kind whose message is safe to show
// to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// PublicMessage returns the caller-facing text carried by err, or "" when err
// holds nothing that may be shown outside the server.
func PublicMessage(err error) string {
	var (
		ve *ValidationError
		fe *FormatError
		se *Error
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &fe):
		return fe.Error()
	case errors.As(err, &se):
		return se.Error()
	}
	return ""
}
