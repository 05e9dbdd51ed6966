package dispatch

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStopped   = errors.New("dispatcher stopped")
	ErrQueueFull = errors.New("dispatcher queue full")
	// ErrInFlight rejects an alarm for a reminder whose previous alarm is
	// still queued or being delivered.
	ErrInFlight = errors.New("alarm for reminder already in flight")
)

// NoRetry marks a delivery failure as permanent.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

// RetryAfter asks for the next attempt no sooner than after, bounded by the
// configured maximum retry delay.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error { return e.err }
