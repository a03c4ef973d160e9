package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category sentinels. Domain errors wrap one of these so callers can branch on
// the class of failure without knowing the specific cause.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError is an error with the status, code and message a client sees.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError with an explicit status and code. Use it when the
// public contract fixes a status that differs from the category default, e.g.
// a duplicate email reported as 400 rather than 409.
func New(status int, code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return New(http.StatusBadRequest, "INVALID_INPUT", message, ErrInvalidInput)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, "UNAUTHORIZED", message, ErrUnauthorized)
}

// Internal creates a 500 error. The wrapped error is kept for logging and is
// never rendered to the client.
func Internal(err error) *AppError {
	return New(http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", err)
}

// HTTPStatus returns the status for err, falling back to its category when
// it is not an AppError.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
