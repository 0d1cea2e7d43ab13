package utils

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// AppError represents an application error with context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`

	cause error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WrapError creates an application error that keeps cause reachable through errors.Is/As
func WrapError(code, message string, cause error) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
		cause:   cause,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// FromContext maps context expiry to TIMEOUT and cancellation to CANCELED.
// Any other error is returned as RPC_ERROR with the given message.
func FromContext(err error, message string) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return WrapError(ErrCodeTimeout, message, err)
	case errors.Is(err, context.Canceled):
		return WrapError(ErrCodeCanceled, message, err)
	default:
		return WrapError(ErrCodeRPC, message, err)
	}
}

// Common error codes
const (
	ErrCodeConnection    = "CONNECTION_ERROR"
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// Gateway error codes
	ErrCodeUnavailableProvider = "UNAVAILABLE_PROVIDER"
	ErrCodeUserRejected        = "USER_REJECTED"
	ErrCodeRPC                 = "RPC_ERROR"
	ErrCodeDecode              = "DECODE_ERROR"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeCanceled            = "CANCELED"
)
