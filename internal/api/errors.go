// Package api provides the HTTP client for the animation rendering service.
// This file contains the error taxonomy shared by all remote operations.
package api

import (
	"errors"
	"fmt"
)

// AuthError indicates that no usable session credential was available, or
// that the server rejected the presented one. Raised before any network
// call when the token source is empty.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("auth: %s", e.Reason)
	}
	return "auth: not authenticated"
}

// RequestError indicates the server responded with a non-2xx status.
// Message carries the body's `message` field when present, otherwise a
// generic fallback.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.Status, e.Message)
}

// NetworkError indicates no HTTP response was obtained at all (DNS failure,
// refused connection, timeout before headers). Kept distinct from
// RequestError so callers can apply different retry policy.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError indicates a caller-side input contract violation,
// detected before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRequestError reports whether err is (or wraps) a RequestError, returning
// it for status inspection.
func IsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
