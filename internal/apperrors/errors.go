// Package apperrors defines the error classes surfaced by logbuf.
//
// Configuration errors are fatal and returned from constructors. Storage and
// capability errors are sentinels checked with errors.Is. Network errors are
// typed so callers can use errors.As to inspect the destination and cause.
// None of them are retried.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrStorageUnavailable is returned when no persistent store could be opened.
	ErrStorageUnavailable = errors.New("log storage is unavailable")

	// ErrNotSupported is returned by operations invoked on a logger that has
	// no persistent store behind it.
	ErrNotSupported = errors.New("not supported")

	// ErrClosed is returned for work submitted after shutdown.
	ErrClosed = errors.New("closed")
)

// ConfigError reports an invalid constructor option.
type ConfigError struct {
	Field   string
	Message string
}

func (e ConfigError) Error() string {
	if e.Field == "" {
		return "invalid option: " + e.Message
	}
	return fmt.Sprintf("invalid option %s: %s", e.Field, e.Message)
}

// NewConfigError creates a ConfigError for the named field.
func NewConfigError(field, format string, a ...any) error {
	return ConfigError{Field: field, Message: fmt.Sprintf(format, a...)}
}

// QueryParameterError reports an invalid day count or time range.
type QueryParameterError struct {
	Message string
}

func (e QueryParameterError) Error() string { return "invalid query parameter: " + e.Message }

// NewQueryParameterError creates a QueryParameterError with a formatted message.
func NewQueryParameterError(format string, a ...any) error {
	return QueryParameterError{Message: fmt.Sprintf(format, a...)}
}

// NoStatusCodeError is returned when a response carried no status code.
type NoStatusCodeError struct {
	Method string
	URL    string
}

func (e *NoStatusCodeError) Error() string {
	return fmt.Sprintf("request to %s %s failed: no response status code", e.Method, e.URL)
}

// InvalidResponseBodyError is returned when a response advertised as JSON
// does not parse.
type InvalidResponseBodyError struct {
	URL   string
	Body  string
	Cause error
}

func (e *InvalidResponseBodyError) Error() string {
	return fmt.Sprintf("invalid json from %s: %v", e.URL, e.Cause)
}

func (e *InvalidResponseBodyError) Unwrap() error { return e.Cause }

// TimeoutError is returned when a request exceeded its deadline.
type TimeoutError struct {
	Method string
	URL    string
	Cause  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s %s has timed out", e.Method, e.URL)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed: HTTP %d", e.URL, e.StatusCode)
}

// IsTimeout reports whether err is, or wraps, a request timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
