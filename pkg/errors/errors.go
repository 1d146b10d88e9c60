package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "Invalid credentials.")
	ErrAccountDisabled    = New("ACCOUNT_DISABLED", http.StatusConflict, "Account is disabled.")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "Resource not found.")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "Forbidden.")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "Unauthorized.")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "Conflict.")
	ErrBadRequest         = New("BAD_REQUEST", http.StatusBadRequest, "Bad request.")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "Validation failed.")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "Cache miss.")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "Internal server error.")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
