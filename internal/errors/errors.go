package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of editor errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeBusy          ErrorType = "busy"
	ErrorTypeSubmission    ErrorType = "submission"
	ErrorTypeTransientPoll ErrorType = "transient_poll"
	ErrorTypePermanentPoll ErrorType = "permanent_poll"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeCancelled     ErrorType = "cancelled"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Retryable  bool      `json:"-"`
	Cause      error     `json:"-"`
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

// NewValidationError reports bad local input. It never touches history or the network.
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewBusyError is returned when the operation gate is closed.
func NewBusyError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusy,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewSubmissionError wraps a failed submit call to the processing service
func NewSubmissionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeSubmission,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewTransientPollError wraps a status check failure that may be retried
func NewTransientPollError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransientPoll,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewPermanentPollError wraps a terminal failure reported by the processing service
func NewPermanentPollError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePermanentPoll,
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

// NewCancellationError marks an expected cancellation. Callers must not surface it to users.
func NewCancellationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCancelled,
		Message:    message,
		StatusCode: 499,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
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

// IsType checks if the error chain contains an AppError of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable reports whether err is a transient failure
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// IsCancellation reports whether err is an expected cancellation rather than a real failure
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if IsType(err, ErrorTypeCancelled) {
		return true
	}
	return stderrors.Is(err, context.Canceled)
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}
