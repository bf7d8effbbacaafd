// Package errors provides the error taxonomy shared by the store, the image
// pipeline and the services. Callers branch on the sentinels with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrValidation reports bad input shape or range.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports a stale or unknown record id.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists reports a sign-up email collision.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrInvalidCredentials reports an unknown email or a password mismatch.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrSourceUnavailable reports an image source with nothing to commit.
	ErrSourceUnavailable = errors.New("image source unavailable")
	// ErrIOFailure reports a failed image copy.
	ErrIOFailure = errors.New("image io failure")
	// ErrConstraintViolation reports a store-level uniqueness breach.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrPermissionDenied reports a refused camera permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError carries the failing rule per field. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, rule string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: rule}}
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
