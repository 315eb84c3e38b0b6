package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers match with errors.Is.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrProRequired    = errors.New("pro membership required")
	ErrValidation     = errors.New("validation failed")
	ErrIntegrity      = errors.New("integrity violation")
	ErrTransientStore = errors.New("store temporarily unavailable")
	ErrNotFound       = errors.New("not found")
)

var (
	ErrInvalidAmount = NewValidationError("amount", "amount must be a non-zero number")
	ErrInvalidDate   = NewValidationError("date", "date must be YYYY-MM-DD or RFC3339")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IntegrityError is returned when a write would break a data invariant.
type IntegrityError struct {
	Reason string
}

func NewIntegrityError(reason string) *IntegrityError {
	return &IntegrityError{Reason: reason}
}

func (e *IntegrityError) Error() string {
	return "integrity violation: " + e.Reason
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
