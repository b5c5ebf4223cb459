// Package errors provides the common error types shared by the cache,
// history and retrieval packages.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType classifies an error raised by the core.
type ErrorType string

const (
	// ErrorTypeNotFound indicates a cache miss. It is an absence signal,
	// not a failure: callers recover by re-querying the backing store.
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeInvalidArgument indicates a caller error (bad TTL,
	// top_k > limit_k, unsupported metric). Never retried.
	ErrorTypeInvalidArgument ErrorType = "INVALID_ARGUMENT"

	// ErrorTypeBackendUnavailable indicates the vector-search or storage
	// backend failed. Retryable; retry policy is left to the caller.
	ErrorTypeBackendUnavailable ErrorType = "BACKEND_UNAVAILABLE"

	// ErrorTypeTimeout indicates the operation exceeded the caller-supplied
	// deadline. Retryable by convention.
	ErrorTypeTimeout ErrorType = "TIMEOUT"
)

// ErrNotFound is the sentinel miss signal returned by cache lookups.
var ErrNotFound = &CoreError{Op: "cache.get", Type: ErrorTypeNotFound}

// CoreError is the error type surfaced by all core operations.
type CoreError struct {
	Op        string
	Type      ErrorType
	Retryable bool
	Err       error
}

// Error returns a string representation of the error.
func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Err.Error(), e.Type)
	}
	return fmt.Sprintf("%s (%s)", e.Op, e.Type)
}

// Unwrap returns the wrapped error, if any.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error. Two CoreErrors match when
// their types match, so errors.Is(err, ErrNotFound) works for any miss.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NotFound creates a miss error for the given operation.
func NotFound(op string) error {
	return &CoreError{Op: op, Type: ErrorTypeNotFound}
}

// InvalidArgument creates a non-retryable caller error.
func InvalidArgument(op string, err error) error {
	return &CoreError{Op: op, Type: ErrorTypeInvalidArgument, Err: err}
}

// InvalidArgumentf creates a non-retryable caller error from a format string.
func InvalidArgumentf(op string, format string, args ...interface{}) error {
	return InvalidArgument(op, fmt.Errorf(format, args...))
}

// BackendUnavailable creates a retryable backend failure.
func BackendUnavailable(op string, err error) error {
	return &CoreError{Op: op, Type: ErrorTypeBackendUnavailable, Retryable: true, Err: err}
}

// Timeout creates a retryable deadline-exceeded error.
func Timeout(op string, err error) error {
	return &CoreError{Op: op, Type: ErrorTypeTimeout, Retryable: true, Err: err}
}

// FromContext maps a context cancellation or deadline into the core taxonomy.
// Returns nil when the context is still live.
func FromContext(op string, ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return Timeout(op, ctx.Err())
	default:
		return &CoreError{Op: op, Type: ErrorTypeBackendUnavailable, Err: ctx.Err()}
	}
}

// WrapBackend classifies an error from an external backend. Deadline errors
// become TIMEOUT, everything else BACKEND_UNAVAILABLE. A nil or already
// classified error is passed through unchanged.
func WrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(op, err)
	}
	return BackendUnavailable(op, err)
}

// IsNotFound returns true if the error is a cache miss.
func IsNotFound(err error) bool {
	var ce *CoreError
	return errors.As(err, &ce) && ce.Type == ErrorTypeNotFound
}

// IsInvalidArgument returns true if the error is a caller error.
func IsInvalidArgument(err error) bool {
	var ce *CoreError
	return errors.As(err, &ce) && ce.Type == ErrorTypeInvalidArgument
}

// IsTimeout returns true if the error is a deadline violation.
func IsTimeout(err error) bool {
	var ce *CoreError
	return errors.As(err, &ce) && ce.Type == ErrorTypeTimeout
}

// IsRetryable returns true if a caller may retry the failed operation.
func IsRetryable(err error) bool {
	var ce *CoreError
	return errors.As(err, &ce) && ce.Retryable
}
