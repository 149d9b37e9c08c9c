// Package apperrors provides the error kinds surfaced by the portal core.
package apperrors

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeDuplicateSignature Code = "DUPLICATE_SIGNATURE"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeInternal           Code = "INTERNAL"
)

// HTTPStatus maps a code to the status the web layer answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateSignature, CodeInvalidTransition:
		return http.StatusConflict
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human readable message
	Metadata map[string]string // Additional context (field names, ids)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error carrying extra context.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound           = New(CodeNotFound, "not found")
	ErrDuplicateSignature = New(CodeDuplicateSignature, "document already signed")
	ErrInvalidTransition  = New(CodeInvalidTransition, "invalid state transition")
	ErrPermissionDenied   = New(CodePermissionDenied, "permission denied")
	ErrValidation         = New(CodeValidation, "validation failed")
)

// CodeOf extracts the code from an error chain, CodeUnknown when absent.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Validation is shorthand for a field validation failure.
func Validation(field, message string) *Error {
	return WithMetadata(CodeValidation, message, map[string]string{"Field": field})
}
