package httpx

import (
	"fmt"
	"net/http"
)

// Business error codes
const (
	CodeSuccess = 0

	// Authentication/Authorization errors (1000-1099)
	CodeUnauthorized = 1001 // Token missing
	CodeInvalidToken = 1002
	CodeTokenExpired = 1003
	CodeForbidden    = 1004 // Scope does not allow the operation

	// Parameter errors (2000-2099)
	CodeParamInvalid = 2002

	// System errors (5000-5999)
	CodeInternalError       = 5001
	CodeDatabaseError       = 5002
	CodeStoreError          = 5004 // Counter store unreachable
	CodeIndexingUnavailable = 5005 // Feature disabled by configuration
)

// AppError represents an application error with HTTP status and business code
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Err        error // logged, never returned to the client
	Data       interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(httpStatus, code int, message string, err error) *AppError {
	return &AppError{
		HTTPStatus: httpStatus,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

func orDefault(message, def string) string {
	if message == "" {
		return def
	}
	return message
}

// ErrUnauthorized creates a 401 unauthorized error
func ErrUnauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, orDefault(message, "unauthorized"), nil)
}

// ErrInvalidToken creates a 401 invalid token error
func ErrInvalidToken(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeInvalidToken, orDefault(message, "invalid token"), nil)
}

// ErrTokenExpired creates a 401 token expired error
func ErrTokenExpired(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, orDefault(message, "token expired"), nil)
}

// ErrForbidden creates a 403 forbidden error
func ErrForbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, orDefault(message, "forbidden"), nil)
}

// ErrParamInvalid creates a 400 parameter invalid error
func ErrParamInvalid(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, orDefault(message, "parameter format error"), nil)
}

// ErrInternalError creates a 500 internal error
func ErrInternalError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, orDefault(message, "internal error"), err)
}

// ErrDatabaseError creates a 500 database error
func ErrDatabaseError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeDatabaseError, orDefault(message, "database error"), err)
}

// ErrStoreError creates a 503 counter store error
func ErrStoreError(message string, err error) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeStoreError, orDefault(message, "counter store unavailable"), err)
}

// ErrIndexingUnavailable creates a 503 error for a feature disabled by configuration
func ErrIndexingUnavailable(message string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, CodeIndexingUnavailable, orDefault(message, "indexing unavailable"), nil)
}
