package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	// ErrResetDisabled is returned by reset when CHROMA_ALLOW_RESET is off.
	ErrResetDisabled = errors.New("reset is disabled by config")
)

// ValidationError represents a validation error in the domain
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// Invalidf is a formatting shorthand for NewValidationError.
func Invalidf(field, format string, args ...interface{}) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
