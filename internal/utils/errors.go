package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable signals that a source returned no usable data.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrTransportFailure signals a timeout, refused connection or auth error.
	ErrTransportFailure = errors.New("transport failure")
	// ErrPersistence signals a failed durable write or read.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError represents invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// NewFieldError creates a ValidationError bound to a named field.
func NewFieldError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ThresholdValidationError is returned when a threshold update is rejected.
type ThresholdValidationError struct {
	Field string
	Value float64
}

func (e *ThresholdValidationError) Error() string {
	return fmt.Sprintf("invalid %s threshold %v: must be a non-negative number", e.Field, e.Value)
}

// IsValidationError reports whether err is a ValidationError anywhere in its chain.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsThresholdError reports whether err is a ThresholdValidationError anywhere in its chain.
func IsThresholdError(err error) bool {
	var te *ThresholdValidationError
	return errors.As(err, &te)
}

// IsUserFacing reports whether err should be shown to an end user verbatim.
func IsUserFacing(err error) bool {
	return IsValidationError(err) || IsThresholdError(err)
}
