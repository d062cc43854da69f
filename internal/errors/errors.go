package errors

import (
	"fmt"
	"time"
)

// ErrorCode classifies a gptscan failure.
type ErrorCode string

const (
	ErrAuthentication ErrorCode = "AUTHENTICATION" // 401, fatal
	ErrAuthorization  ErrorCode = "AUTHORIZATION"  // 403, fatal
	ErrNotFound       ErrorCode = "NOT_FOUND"      // 404, fatal for that key
	ErrRateLimit      ErrorCode = "RATE_LIMIT"     // 429, retryable
	ErrServer         ErrorCode = "SERVER"         // 5xx, retryable
	ErrNetwork        ErrorCode = "NETWORK"        // connect/timeout, retryable
	ErrValidation     ErrorCode = "VALIDATION"     // bad request parameters, fatal
	ErrInternal       ErrorCode = "INTERNAL"       // unexpected local failure
)

// Error is a classified gptscan error. Remote API failures, validation
// failures, and local failures all flow through this one type so callers
// branch on Code instead of parsing messages.
type Error struct {
	Code    ErrorCode
	Status  int // HTTP status when the error originated remotely, 0 otherwise
	Message string
	Details map[string]any

	// RetryAfter carries the server-provided backoff hint for rate-limit
	// responses. Zero when the server gave none.
	RetryAfter time.Duration

	// Attempts is the number of tries consumed before the error was
	// surfaced. Zero for errors that were never retried.
	Attempts int

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: %s (after %d attempts)", e.Code, e.Message, e.Attempts)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failure is transient per the retry policy.
// Only rate-limit, server, and network errors are ever retried.
func (e *Error) Retryable() bool {
	switch e.Code {
	case ErrRateLimit, ErrServer, ErrNetwork:
		return true
	}
	return false
}

// NewAuthentication creates a fatal 401 error for invalid or expired credentials.
func NewAuthentication(msg string) *Error {
	if msg == "" {
		msg = "invalid or expired API credentials"
	}
	return &Error{Code: ErrAuthentication, Status: 401, Message: msg}
}

// NewAuthorization creates a fatal 403 error for credentials that lack
// Compliance API access to the workspace.
func NewAuthorization(workspaceID string) *Error {
	return &Error{
		Code:    ErrAuthorization,
		Status:  403,
		Message: fmt.Sprintf("access denied for workspace %q; check workspace ID and API permissions", workspaceID),
		Details: map[string]any{"workspace_id": workspaceID},
	}
}

// NewNotFound creates a 404 error for an absent workspace or resource.
func NewNotFound(resource string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("resource not found: %s", resource),
		Details: map[string]any{"resource": resource},
	}
}

// NewRateLimit creates a retryable 429 error. retryAfter is the server's
// Retry-After hint, zero if absent.
func NewRateLimit(msg string, retryAfter time.Duration) *Error {
	if msg == "" {
		msg = "rate limit exceeded"
	}
	return &Error{Code: ErrRateLimit, Status: 429, Message: msg, RetryAfter: retryAfter}
}

// NewServer creates a retryable error for a 5xx response.
func NewServer(status int, msg string) *Error {
	return &Error{Code: ErrServer, Status: status, Message: msg}
}

// NewNetwork creates a retryable error for a connection or timeout failure.
func NewNetwork(err error) *Error {
	return &Error{Code: ErrNetwork, Message: err.Error(), cause: err}
}

// NewValidation creates a fatal error for malformed request parameters.
func NewValidation(field, msg string) *Error {
	return &Error{
		Code:    ErrValidation,
		Message: msg,
		Details: map[string]any{"field": field},
	}
}

// NewInternal creates an error for unexpected local failures.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: ErrInternal, Status: 500, Message: msg, cause: err}
}

// Is checks if an error is a gptscan Error with the given code.
func Is(err error, code ErrorCode) bool {
	if gErr, ok := err.(*Error); ok {
		return gErr.Code == code
	}
	return false
}

// CodeOf returns the classification of err, or ErrInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if gErr, ok := err.(*Error); ok {
		return gErr.Code
	}
	return ErrInternal
}
