package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed registration or update input.
// It is surfaced to the caller as a request failure and never retried.
type ValidationError struct {
	Reason string
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NotFoundError reports an operation referencing an unknown service id.
// The registry state is left unchanged when it is returned.
type NotFoundError struct {
	ID string
}

func NewNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("service %s not found", e.ID)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
