package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error kind identifiers, used as the "type" field of client-facing error
// envelopes.
const (
	KindAuthentication = "authentication_error"
	KindInvalidRequest = "invalid_request_error"
	KindRateLimit      = "rate_limit_error"
	KindOverloaded     = "overloaded_error"
	KindAPI            = "api_error"
	KindNetwork        = "network_error"
)

// AuthenticationError is returned when the upstream rejects the API key
// (HTTP 401 or 403). It is never retried.
type AuthenticationError struct {
	Provider string
	Message  string
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
}

// InvalidRequestError is returned for an upstream 400 or a local validation
// failure.
type InvalidRequestError struct {
	Provider string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request field %q: %s", e.Field, e.Message)
	}
	if e.Provider != "" {
		return fmt.Sprintf("provider %q rejected request: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

// RateLimitError is returned on an upstream 429. The adapter arms the global
// reactive cooldown before surfacing it.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// OverloadedError is returned for an upstream 5xx whose body indicates
// capacity exhaustion ("overloaded" / "capacity").
type OverloadedError struct {
	Provider string
	Message  string
}

// Error implements the error interface.
func (e *OverloadedError) Error() string {
	return fmt.Sprintf("provider %q overloaded: %s", e.Provider, e.Message)
}

// APIError is returned for any other upstream 5xx.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// NetworkError is returned for transport-level failures: connect/read
// timeouts, connection resets, DNS failures.
type NetworkError struct {
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q network error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q network error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Kind classifies an error into one of the envelope kind identifiers.
// Cancellation is not a kind; callers check IsCancelled first.
func Kind(err error) string {
	var (
		authErr    *AuthenticationError
		invalidErr *InvalidRequestError
		rateErr    *RateLimitError
		overErr    *OverloadedError
		apiErr     *APIError
	)
	switch {
	case errors.As(err, &authErr):
		return KindAuthentication
	case errors.As(err, &invalidErr):
		return KindInvalidRequest
	case errors.As(err, &rateErr):
		return KindRateLimit
	case errors.As(err, &overErr):
		return KindOverloaded
	case errors.As(err, &apiErr):
		return KindAPI
	default:
		return KindNetwork
	}
}

// HTTPStatus maps an error to the status code surfaced to the client.
func HTTPStatus(err error) int {
	var apiErr *APIError
	switch Kind(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindOverloaded:
		return 529
	case KindAPI:
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// IsCancelled reports whether an error stems from context cancellation
// (client disconnect or an explicit node/branch/tree cancel).
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
