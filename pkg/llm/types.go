package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TransientError wraps a failure that may succeed on retry: provider
// throttling, timeouts, transient network errors, 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps a failure that retrying cannot fix: bad credentials,
// a request the provider rejects as malformed, an unknown model.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Transientf builds a *TransientError from a format string.
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

// Fatalf builds a *FatalError from a format string.
func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is classified as retryable.
// Context deadline expiry counts as transient: a per-call timeout fired,
// the run is still alive.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ClassifyHTTPStatus maps a non-200 provider response to the error taxonomy.
// Shared by all HTTP backends so they agree on what is worth retrying.
func ClassifyHTTPStatus(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return Transientf("status %d: %s", status, body)
	default:
		return Fatalf("status %d: %s", status, body)
	}
}
