package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLimitExceeded is matched by every *LimitExceeded via errors.Is.
	ErrLimitExceeded = errors.New("ratelimit: limit exceeded")

	// ErrInvalidConfig is returned when a limiter is built with a non-positive limit or window.
	ErrInvalidConfig = errors.New("ratelimit: invalid configuration")
)

// LimitExceeded is returned by Check when the post-increment count is above the limit.
// It is an expected outcome, not a store failure.
type LimitExceeded struct {
	Identifier string
	Scope      Scope
	Count      int64
	Limit      int64
	Window     time.Duration
	// RetryAfter is the time left in the current window, zero when unknown.
	RetryAfter time.Duration
}

func (e *LimitExceeded) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("rate limit exceeded: %s scope, %d/%d requests in %s", e.Scope, e.Count, e.Limit, e.Window)
	}

	return fmt.Sprintf("rate limit exceeded: %d/%d requests in %s", e.Count, e.Limit, e.Window)
}

func (e *LimitExceeded) Is(target error) bool {
	return target == ErrLimitExceeded
}

// ConnectionError reports a malformed or unreachable store target.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ratelimit: connect %q: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StoreError wraps any failure talking to the store during an operation.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ratelimit: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsLimitExceeded reports whether err is a rate limit rejection and returns its details.
func IsLimitExceeded(err error) (*LimitExceeded, bool) {
	var exceeded *LimitExceeded
	if errors.As(err, &exceeded) {
		return exceeded, true
	}

	return nil, false
}
