// Package errors provides error codes and classification for NatureLog.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Sync errors
	ErrSyncOffline   ErrorCode = "SYNC_OFFLINE"
	ErrSyncFailed    ErrorCode = "SYNC_FAILED"
	ErrSyncTransport ErrorCode = "SYNC_TRANSPORT_ERROR"
	ErrSyncTimeout   ErrorCode = "SYNC_TIMEOUT"
	ErrSyncServer    ErrorCode = "SYNC_SERVER_ERROR"
	ErrSyncAuth      ErrorCode = "SYNC_AUTH_FAILED"
	ErrSyncRejected  ErrorCode = "SYNC_REJECTED"
	ErrMediaUpload   ErrorCode = "MEDIA_UPLOAD_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the error code from an error chain.
// Returns ErrInternal for errors that carry no code.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsRetryable reports whether a sync failure is transient and eligible
// for backoff-and-retry. Transport failures, timeouts and remote server
// errors are retryable; authentication and validation rejections are
// not. Errors with no classification are treated as non-retryable so an
// unrecoverable condition cannot loop forever.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case ErrSyncTransport, ErrSyncTimeout, ErrSyncServer:
			return true
		}
		return false
	}

	// Bare network errors from the HTTP client are always transient.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
