package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a flightrecorder error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrConfigInvalid    ErrorCode = "CONFIG_INVALID"    // 400
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED" // 403
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrMonitorNotFound  ErrorCode = "MONITOR_NOT_FOUND" // 404
	ErrFileTooLarge     ErrorCode = "FILE_TOO_LARGE"    // 413
	ErrStoreOpen        ErrorCode = "STORE_OPEN"        // 500
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// RecorderError represents a structured error with code, status, and details.
type RecorderError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RecorderError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *RecorderError {
	return &RecorderError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewConfigInvalid creates a 400 error for a configuration that failed validation.
func NewConfigInvalid(msg string) *RecorderError {
	return &RecorderError{
		Code:    ErrConfigInvalid,
		Status:  400,
		Message: msg,
	}
}

// NewPermissionDenied creates a 403 error carrying user-facing remediation text.
func NewPermissionDenied(instructions string) *RecorderError {
	return &RecorderError{
		Code:    ErrPermissionDenied,
		Status:  403,
		Message: "accessibility permission not granted",
		Details: map[string]any{"instructions": instructions},
	}
}

// NewNotFound creates a 404 error for when a capture cannot be found.
func NewNotFound(identifier string) *RecorderError {
	return &RecorderError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("capture not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewMonitorNotFound creates a 404 error for an unknown or unregistered monitor.
func NewMonitorNotFound(monitorType string) *RecorderError {
	return &RecorderError{
		Code:    ErrMonitorNotFound,
		Status:  404,
		Message: fmt.Sprintf("monitor not registered: %s", monitorType),
		Details: map[string]any{"monitor": monitorType},
	}
}

// NewFileTooLarge creates a 413 error when an output file would exceed its limit.
func NewFileTooLarge(max, actual int64) *RecorderError {
	return &RecorderError{
		Code:    ErrFileTooLarge,
		Status:  413,
		Message: fmt.Sprintf("file exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewStoreOpen creates a 500 error for a store that could not be opened.
func NewStoreOpen(path string, err error) *RecorderError {
	msg := fmt.Sprintf("failed to open store at %s", path)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &RecorderError{
		Code:    ErrStoreOpen,
		Status:  500,
		Message: msg,
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *RecorderError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &RecorderError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err, or any error it wraps, is a RecorderError with the given code.
func Is(err error, code ErrorCode) bool {
	var rErr *RecorderError
	if stderrors.As(err, &rErr) {
		return rErr.Code == code
	}
	return false
}

// As returns the RecorderError in err's chain, if any.
func As(err error) (*RecorderError, bool) {
	var rErr *RecorderError
	if stderrors.As(err, &rErr) {
		return rErr, true
	}
	return nil, false
}
