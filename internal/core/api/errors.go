package api

import (
	"errors"
	"net"
	"net/url"
)

// ErrUnexpectedBody marks a 2xx response whose body did not decode into
// the expected entity shape.
var ErrUnexpectedBody = errors.New("unexpected response body")

// Error is a structured server rejection decoded from the REST error body.
type Error struct {
	Status    int
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "request failed"
}

// Retryable reports whether the status class permits retrying the same
// request: request timeout, throttling and server-side failures.
func (e *Error) Retryable() bool {
	return e.Status == 408 || e.Status == 429 || e.Status >= 500
}

// IsRetryable classifies any command failure. Transport-level errors
// (refused connections, timeouts, DNS) are retryable; server rejections
// defer to their status class.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return false
}

// IsAuthFailure reports a 401/403 rejection, which is terminal for the
// session rather than retryable.
func IsAuthFailure(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 401 || apiErr.Status == 403
	}
	return false
}
