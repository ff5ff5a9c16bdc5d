// Package apperror provides domain-specific error types for GrantDesk.
// These errors carry an HTTP status code and a user-safe message. The Echo
// error handler maps them to appropriate HTTP responses automatically.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// LockedUntil is set only on account-locked errors. Disclosing the
	// unlock time to the account owner is accepted in this design.
	LockedUntil *time.Time `json:"locked_until,omitempty"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    "not_found",
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    "bad_request",
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "unauthorized",
		Message: message,
	}
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "forbidden",
		Message: message,
	}
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    "conflict",
		Message: message,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    "validation_error",
		Message: message,
	}
}

// --- Authentication error taxonomy ---
//
// InvalidCredentials is intentionally coarse: bad email, bad password, and
// malformed or expired tokens all produce the same answer so callers cannot
// enumerate accounts or probe which verification step failed.

// NewInvalidCredentials creates the uniform 401 for any credential failure.
func NewInvalidCredentials() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "invalid_credentials",
		Message: "invalid email or password",
	}
}

// NewAccountLocked creates a 423 Locked error carrying the unlock time.
// Only returned for emails that map to an existing account.
func NewAccountLocked(until time.Time) *AppError {
	return &AppError{
		Code:        http.StatusLocked,
		Type:        "account_locked",
		Message:     fmt.Sprintf("account is locked until %s", until.UTC().Format(time.RFC3339)),
		LockedUntil: &until,
	}
}

// NewAccountInactive creates a 401 for deactivated accounts.
func NewAccountInactive() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "account_inactive",
		Message: "account is deactivated",
	}
}

// NewSessionMissing creates a 403 for CSRF checks attempted with no session.
func NewSessionMissing() *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "session_missing",
		Message: "no active session",
	}
}

// NewCsrfMismatch creates a 403 for missing or mismatched CSRF tokens.
func NewCsrfMismatch() *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Type:    "csrf_mismatch",
		Message: "invalid or missing CSRF token",
	}
}

// NewRefreshUnavailable creates a 401 for refresh attempts with no usable
// refresh credential (cookie absent or failed verification).
func NewRefreshUnavailable() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    "refresh_unavailable",
		Message: "refresh credential missing or invalid",
	}
}

// errMissingContext is the shared internal error for nil precondition checks.
var errMissingContext = errors.New("missing required context")

// NewMissingContext creates a 500 error for handler nil-context guards
// (e.g. principal not set, dependency not wired). Provides a meaningful
// Internal error for logging instead of nil.
func NewMissingContext() *AppError {
	return NewInternal(errMissingContext)
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// IsType reports whether err is an AppError with the given Type.
func IsType(err error, typ string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == typ
}
