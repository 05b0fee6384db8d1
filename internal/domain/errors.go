package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Transport
var (
	ErrNotFound    = errors.New("not found")
	ErrCacheMiss   = errors.New("cache miss")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("timeout")
	ErrInvalidURL  = errors.New("invalid URL")
)

// ErrMissingAPIKey is returned when a command needs the photo API but no
// key is configured
var ErrMissingAPIKey = errors.New("photo source API key is required")

// ErrStaleResponse marks a page result for a superseded query or page.
// Such results are dropped and never reach list state.
var ErrStaleResponse = errors.New("stale response")

// Scheduling and storage
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrSchedulerClosed = errors.New("scheduler closed")
	ErrStoreClosed     = errors.New("snapshot store closed")
)

// FetchError is a failed request to the photo API
type FetchError struct {
	URL        string
	StatusCode int // zero when no response arrived
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("GET %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError creates a FetchError
func NewFetchError(url string, statusCode int, err error) *FetchError {
	return &FetchError{URL: url, StatusCode: statusCode, Err: err}
}

// Photo API error codes that describe a temporary condition on the remote
// side rather than a bad request
const (
	APICodeServiceUnavailable = 105
	APICodeWriteFailed        = 106
)

// APIError is a failure reported inside a well-formed API envelope. The
// photo API delivers these with HTTP 200.
type APIError struct {
	Method  string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed (code %d): %s", e.Method, e.Code, e.Message)
}

// Temporary reports whether repeating the call may succeed
func (e *APIError) Temporary() bool {
	return e.Code == APICodeServiceUnavailable || e.Code == APICodeWriteFailed
}

// NewAPIError creates an APIError, filling in a placeholder message
func NewAPIError(method string, code int, message string) *APIError {
	if message == "" {
		message = "Unknown error"
	}
	return &APIError{Method: method, Code: code, Message: message}
}

// RetryableError marks err as worth another attempt. RetryAfter carries a
// server-requested pause when one was given.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryableError wraps err as retryable
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err describes a transient failure: an
// explicit RetryableError, an overloaded or rate-limiting server, a
// timeout, or a temporary API error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return true
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Temporary() {
		return true
	}

	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// ValidationError rejects a caller-supplied value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
