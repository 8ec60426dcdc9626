package modeladapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// TransportError is returned when the model endpoint could not be reached or
// answered with a non-2xx status. StatusCode is zero for network failures.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: unexpected status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request may succeed. Network
// failures and 5xx statuses are retryable, other 4xx statuses are not.
func (e *TransportError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// TimeoutError is returned when a model call exceeded its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RateLimitError is returned when the API responds with HTTP 429 (Too Many Requests).
// It carries an optional RetryAfter duration parsed from the Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// MalformedOutputError is returned when the model answered but the reply
// cannot be interpreted: an undecodable body, no choices, or tool calls with
// a broken shape. It is never retried.
type MalformedOutputError struct {
	Reason string
	Body   string
}

func (e *MalformedOutputError) Error() string {
	if e.Body == "" {
		return "malformed model output: " + e.Reason
	}
	return fmt.Sprintf("malformed model output: %s: %s", e.Reason, e.Body)
}

// IsRetryable reports whether err is a model failure worth another attempt:
// rate limits, timeouts and retryable transport errors.
func IsRetryable(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}

	var tre *TransportError
	if errors.As(err, &tre) {
		return tre.Retryable()
	}

	return false
}

// ParseRetryAfter parses the Retry-After header value as either seconds (integer)
// or an HTTP-date (RFC 7231). Returns zero if unparseable or if the date is in the past.
func ParseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}

// classifyDoError converts an error from http.Client.Do into a typed failure.
func classifyDoError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}

	return &TransportError{Err: err}
}
