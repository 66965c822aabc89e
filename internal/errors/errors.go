package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeFetch      ErrorType = "fetch"
	ErrorTypeModel      ErrorType = "model"
	ErrorTypeCache      ErrorType = "cache"
	ErrorTypeProcessing ErrorType = "processing"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	// Attempts is set for model errors raised after retry exhaustion
	Attempts int `json:"attempts,omitempty"`
	// Permanent marks client-side rejections that must never be retried
	Permanent bool  `json:"-"`
	Cause     error `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Permanent:  true,
		Cause:      cause,
	}
}

// NewFetchError creates an error for an image that could not be retrieved or decoded
func NewFetchError(imageID string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeFetch,
		Message:    fmt.Sprintf("failed to resolve image %q", imageID),
		Details:    imageID,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewModelError creates an error for a vision endpoint failure after retries
func NewModelError(message string, attempts int, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeModel,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Attempts:   attempts,
		Cause:      cause,
	}
}

// NewModelRejectionError creates an error for a request the model rejected as
// malformed. Rejections are permanent and must not be retried.
func NewModelRejectionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeModel,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Permanent:  true,
		Cause:      cause,
	}
}

// NewCacheError creates a new cache error
func NewCacheError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCache,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProcessing,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsPermanent reports whether the error is a client-side rejection that
// retrying cannot fix
func IsPermanent(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Permanent
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
