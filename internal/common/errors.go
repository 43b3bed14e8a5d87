package common

import "fmt"

// ValidationError indicates malformed or missing input. Handlers translate
// it to a 400 response with a stable wire error code.
type ValidationError struct {
	Code    string // wire error code, e.g. "invalid_request", "invalid_client_metadata"
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError creates a ValidationError with the given wire code.
func NewValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AuthError indicates a missing, invalid, expired, or revoked credential.
// Handlers translate it to 401 with the discovery WWW-Authenticate header.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// NewAuthError creates an AuthError.
func NewAuthError(format string, args ...any) *AuthError {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError indicates the operation is blocked as a safety measure,
// most notably when the master key is absent. Maps to 403.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// NewForbiddenError creates a ForbiddenError.
func NewForbiddenError(format string, args ...any) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// RateLimitError indicates the caller exceeded a fixed-window limit. Maps to 429.
type RateLimitError struct {
	Action string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s", e.Action)
}

// NewRateLimitError creates a RateLimitError for the named action.
func NewRateLimitError(action string) *RateLimitError {
	return &RateLimitError{Action: action}
}
