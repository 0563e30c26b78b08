package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input; nothing is applied.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates a transition or mutation the lifecycle forbids.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyProcessed marks a decision on a document that already reached a final status.
	ErrAlreadyProcessed = errors.New("document already processed")
	// ErrDuplicate occurs when a unique business key is reused.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConcurrencyConflict occurs when another actor changed the resource first.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrUnauthorized occurs when the caller carries no valid identity.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
}

// Validation builds a ValidationError for field.
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
