// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Missing or unparsable trade record fields
//   - Schema errors (200-299): Structurally absent columns in a partition
//   - Storage errors (300-399): Partition store and ingestion failures
//   - Server errors (400-499): HTTP request handling errors
//   - Report errors (500-599): Metrics report computation errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeMissingField, "missing required field")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodePartitionNotFound, "no trades for magic number %d", magic)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeQueryFailed, "failed to load partition", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodePartitionNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// ValidationError represents a failed record validation. It carries every
// offending field so a client can fix the whole payload in one round trip.
type ValidationError struct {
	MissingFields []string
	InvalidFields []string
}

// NewValidationError creates a new ValidationError from the given field lists.
func NewValidationError(missing, invalid []string) *ValidationError {
	return &ValidationError{
		MissingFields: missing,
		InvalidFields: invalid,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.MissingFields) > 0 {
		parts = append(parts, fmt.Sprintf("missing fields: %s", strings.Join(e.MissingFields, ", ")))
	}

	if len(e.InvalidFields) > 0 {
		parts = append(parts, fmt.Sprintf("invalid fields: %s", strings.Join(e.InvalidFields, ", ")))
	}

	if len(parts) == 0 {
		return "validation failed"
	}

	return fmt.Sprintf("[%d] %s", ErrCodeInvalidRecord, strings.Join(parts, "; "))
}

// IsValidationError checks if an error is a ValidationError.
// It uses errors.As to check the error chain.
func IsValidationError(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// IsSchemaError checks if an error carries a schema error code (200-299).
func IsSchemaError(err error) bool {
	code := GetCode(err)

	return code >= ErrCodeMissingColumn && code < ErrCodePartitionNotFound
}
