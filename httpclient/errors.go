package httpclient

import (
	"errors"
	"fmt"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target answered HTTP 429. It is retried like
// any other transport failure and counts toward the retry budget.
type ErrRateLimited struct {
	URL string
}

func (e ErrRateLimited) Error() string {
	return fmt.Sprintf("rate_limited: %s", e.URL)
}

// ErrHTTPStatus indicates a non-2xx response without dedicated handling.
type ErrHTTPStatus struct {
	StatusCode int
	URL        string
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.URL)
}

// ErrRobotsDisallowed indicates robots.txt forbids fetching the URL. It is
// not retried.
type ErrRobotsDisallowed struct {
	URL string
}

func (e ErrRobotsDisallowed) Error() string {
	return fmt.Sprintf("robots_disallowed: %s", e.URL)
}

// RequestError wraps the last underlying cause after the retry budget is
// exhausted.
type RequestError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %s: %v", e.Attempts, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ErrorLabel classifies err into a short metric label.
func ErrorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var robots ErrRobotsDisallowed
	if errors.As(err, &robots) {
		return "robots_disallowed"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return fmt.Sprintf("http_%d", status.StatusCode)
	}
	return "other"
}
