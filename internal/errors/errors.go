// Package errors provides error code definitions for the notedeck backend.
package errors

import "fmt"

// ErrorCode identifies a failure class across the sync engine.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Document errors
	ErrTodoNotFound   ErrorCode = "TODO_NOT_FOUND"
	ErrNodeReadOnly   ErrorCode = "NODE_READ_ONLY"
	ErrSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"

	// Store sync errors
	ErrStoreFailed       ErrorCode = "STORE_FAILED"
	ErrSyncFailed        ErrorCode = "SYNC_FAILED"
	ErrSyncConflict      ErrorCode = "SYNC_CONFLICT"
	ErrDocumentOwnership ErrorCode = "DOCUMENT_OWNERSHIP_CONFLICT"
	ErrDriverBound       ErrorCode = "DRIVER_ALREADY_BOUND"

	// Attachment errors
	ErrAttachmentNotFound ErrorCode = "ATTACHMENT_NOT_FOUND"
	ErrAttachmentInvalid  ErrorCode = "ATTACHMENT_INVALID"
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

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
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

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
