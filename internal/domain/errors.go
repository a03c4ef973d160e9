package domain

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/srivardhan-kondu/EmpathyAI/pkg/errors"
)

// Validation.
var (
	ErrMissingField    = fmt.Errorf("%w: missing required field", apperrors.ErrInvalidInput)
	ErrPasswordTooLong = fmt.Errorf("%w: password longer than 72 bytes", apperrors.ErrInvalidInput)
)

// Conflict.
var ErrDuplicateEmail = fmt.Errorf("%w: email already registered", apperrors.ErrConflict)

// Authentication on the login and recovery paths.
var (
	ErrUserNotFound     = fmt.Errorf("%w: user not found", apperrors.ErrNotFound)
	ErrBadCredentials   = fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	ErrAssertionInvalid = fmt.Errorf("%w: identity assertion rejected", apperrors.ErrUnauthorized)
	ErrTokenMissing     = fmt.Errorf("%w: token missing", apperrors.ErrUnauthorized)
	ErrTokenInvalid     = fmt.Errorf("%w: token invalid", apperrors.ErrUnauthorized)
	ErrTokenExpired     = fmt.Errorf("%w: token expired", apperrors.ErrUnauthorized)
	ErrTokenMismatch    = fmt.Errorf("%w: token does not match the outstanding recovery", apperrors.ErrUnauthorized)
)

// Request gate.
var (
	ErrNoToken  = fmt.Errorf("%w: no bearer token", apperrors.ErrUnauthorized)
	ErrBadToken = fmt.Errorf("%w: bearer token rejected", apperrors.ErrUnauthorized)
)

// Dependencies.
var (
	ErrDeliveryFailed    = fmt.Errorf("%w: recovery message not delivered", apperrors.ErrInternal)
	ErrCorruptCredential = fmt.Errorf("%w: stored credential is malformed", apperrors.ErrInternal)
)

type contract struct {
	sentinel error
	status   int
	code     string
	message  string
}

// contracts fixes the client-visible status, code and message for each
// domain error. Order matters: the first sentinel matched by errors.Is wins.
var contracts = []contract{
	{ErrMissingField, http.StatusBadRequest, "MISSING_FIELD", "All fields are required"},
	{ErrPasswordTooLong, http.StatusBadRequest, "INVALID_PASSWORD", "Password must be at most 72 bytes"},
	{ErrDuplicateEmail, http.StatusBadRequest, "USER_EXISTS", "User already exists"},
	{ErrUserNotFound, http.StatusBadRequest, "USER_NOT_FOUND", "User not found"},
	{ErrBadCredentials, http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid credentials"},
	{ErrAssertionInvalid, http.StatusBadRequest, "INVALID_ASSERTION", "Invalid token"},
	{ErrTokenMissing, http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired token"},
	{ErrTokenInvalid, http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired token"},
	{ErrTokenExpired, http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired token"},
	{ErrTokenMismatch, http.StatusBadRequest, "INVALID_RESET_TOKEN", "Invalid or expired token"},
	{ErrNoToken, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication failed: No token provided"},
	{ErrBadToken, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication failed: Invalid token"},
}

// AppError converts err into the AppError the HTTP contract expects. Errors
// that match no domain sentinel, including ErrDeliveryFailed and
// ErrCorruptCredential, become a generic 500 that keeps err for logging.
func AppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, c := range contracts {
		if errors.Is(err, c.sentinel) {
			return apperrors.New(c.status, c.code, c.message, err)
		}
	}
	return apperrors.Internal(err)
}
