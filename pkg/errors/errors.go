package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidationFailed
	ErrAuthExpired
	ErrAuthConflict
	ErrContextUnavailable
	ErrBackendUnreachable
	ErrForbidden
	ErrInternal
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func ValidationFailed(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidationFailed,
		Message: message,
		Err:     err,
	}
}

// AuthExpired indicates the identity token could not be refreshed and the
// principal must re-authenticate.
func AuthExpired(err error) *AppError {
	return &AppError{
		Code:    ErrAuthExpired,
		Message: "authentication expired",
		Err:     err,
	}
}

// AuthConflict indicates a sign-in was rejected because the identity provider
// believes a session already exists.
func AuthConflict(err error) *AppError {
	return &AppError{
		Code:    ErrAuthConflict,
		Message: "session already exists",
		Err:     err,
	}
}

// ContextUnavailable indicates the tenant marker could not be bound to the
// database session. Operations carrying this error never ran unscoped.
func ContextUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrContextUnavailable,
		Message: "tenant context unavailable",
		Err:     err,
	}
}

// BackendUnreachable indicates a network or backend failure before the
// operation could complete.
func BackendUnreachable(err error) *AppError {
	return &AppError{
		Code:    ErrBackendUnreachable,
		Message: "backend unreachable",
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
	}
}

// String returns the stable wire name for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrValidationFailed:
		return "VALIDATION_FAILED"
	case ErrAuthExpired:
		return "AUTH_EXPIRED"
	case ErrAuthConflict:
		return "AUTH_CONFLICT"
	case ErrContextUnavailable:
		return "CONTEXT_UNAVAILABLE"
	case ErrBackendUnreachable:
		return "BACKEND_UNREACHABLE"
	case ErrForbidden:
		return "FORBIDDEN"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
