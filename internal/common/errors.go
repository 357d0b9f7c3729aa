package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried across the HTTP boundary.
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeNotFound      = "NOT_FOUND"
	CodeSourceMissing = "SOURCE_MISSING"
	CodeQueueFull     = "QUEUE_FULL"
	CodeConfig        = "CONFIG_ERROR"
	CodeInternal      = "INTERNAL_ERROR"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// ErrQueueFull is returned when an enqueue would exceed a queue ceiling.
	ErrQueueFull = errors.New("upload queue capacity exceeded")
	// ErrSourceMissing means the original object is gone from the object store.
	// It is retryable: the object may reappear (e.g. a delayed replication).
	ErrSourceMissing = errors.New("source_missing")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRetryable reports whether the caller may retry the failed operation
// without user intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrInvalidInput) {
		return false
	}
	return true
}

// CodeOf returns the AppError code found in err's chain, or a code derived
// from the wrapped sentinel.
func CodeOf(err error) string {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	switch {
	case errors.Is(err, ErrSourceMissing):
		return CodeSourceMissing
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrQueueFull):
		return CodeQueueFull
	}
	return CodeInternal
}
