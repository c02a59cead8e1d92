package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NoActiveWindow is returned by TimeToReset when the identifier has no running window.
const NoActiveWindow int64 = -1

// Limiter defines the interface for fixed-window rate limiting.
type Limiter interface {
	// Check counts a request for identifier and returns a *LimitExceeded when it is over the limit.
	Check(ctx context.Context, identifier string) error
	// Remaining returns how many requests identifier may still make in the current window.
	Remaining(ctx context.Context, identifier string) (int64, error)
	// TimeToReset returns the whole seconds until the window resets, or NoActiveWindow.
	TimeToReset(ctx context.Context, identifier string) (int64, error)
	// Limit returns the per-window ceiling.
	Limit() int64
}

// WindowedLimiter implements fixed-window rate limiting on a shared Store.
//
// The limiter holds no mutable state of its own, so any number of instances
// built with the same store, prefix, limit and window behave identically.
type WindowedLimiter struct {
	store    Store
	prefix   string
	limit    int64
	window   time.Duration
	scope    Scope
	logger   *zap.Logger
	recorder Recorder
}

// New creates a fixed-window limiter allowing limit requests per window for each identifier.
// Windows shorter than a second are stored as one second.
func New(store Store, prefix string, limit int64, window time.Duration, opts ...Option) (*WindowedLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}

	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidConfig, limit)
	}

	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, window)
	}

	l := &WindowedLimiter{
		store:    store,
		prefix:   prefix,
		limit:    limit,
		window:   time.Duration(WindowSeconds(window)) * time.Second,
		logger:   zap.NewNop(),
		recorder: noopRecorder{},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Check increments the identifier's counter and compares afterwards.
//
// The increment happens on every call, including rejected ones, so a burst of
// limit+k concurrent calls lets exactly the first limit increments through in
// the store's serialization order.
func (l *WindowedLimiter) Check(ctx context.Context, identifier string) error {
	key := l.Key(identifier)
	start := time.Now()

	counter, err := l.store.IncrementWindow(ctx, key, l.window)
	if err != nil {
		l.recorder.Observe("check", OutcomeError, time.Since(start))

		return wrapStoreErr("check", key, err)
	}

	if counter.Count > l.limit {
		l.recorder.Observe("check", OutcomeLimited, time.Since(start))

		retryAfter := counter.TTL
		if retryAfter < 0 {
			retryAfter = 0
		}

		return &LimitExceeded{
			Identifier: identifier,
			Scope:      l.scope,
			Count:      counter.Count,
			Limit:      l.limit,
			Window:     l.window,
			RetryAfter: retryAfter,
		}
	}

	l.recorder.Observe("check", OutcomeAllowed, time.Since(start))

	return nil
}

// Remaining returns limit minus the current count, floored at zero.
// The value is advisory; concurrent Checks may change it immediately.
func (l *WindowedLimiter) Remaining(ctx context.Context, identifier string) (int64, error) {
	key := l.Key(identifier)
	start := time.Now()

	count, err := l.store.Get(ctx, key)
	if err != nil {
		l.recorder.Observe("remaining", OutcomeError, time.Since(start))

		return 0, wrapStoreErr("remaining", key, err)
	}

	l.recorder.Observe("remaining", OutcomeAllowed, time.Since(start))

	return max(0, l.limit-count), nil
}

// TimeToReset returns the seconds left in the identifier's window.
// A counter without an expiry should never exist; it is logged and reported as NoActiveWindow.
func (l *WindowedLimiter) TimeToReset(ctx context.Context, identifier string) (int64, error) {
	key := l.Key(identifier)
	start := time.Now()

	ttl, err := l.store.TTL(ctx, key)
	if err != nil {
		l.recorder.Observe("time_to_reset", OutcomeError, time.Since(start))

		return 0, wrapStoreErr("time_to_reset", key, err)
	}

	l.recorder.Observe("time_to_reset", OutcomeAllowed, time.Since(start))

	switch {
	case ttl == TTLNoKey:
		return NoActiveWindow, nil
	case ttl == TTLNoExpiry:
		l.logger.Warn("rate limit counter has no expiry", zap.String("key", key))

		return NoActiveWindow, nil
	case ttl < 0:
		return NoActiveWindow, nil
	}

	return int64((ttl + time.Second - 1) / time.Second), nil
}

// Key returns the store key holding identifier's counter.
func (l *WindowedLimiter) Key(identifier string) string {
	return l.prefix + ":" + identifier
}

// Limit returns the per-window ceiling.
func (l *WindowedLimiter) Limit() int64 {
	return l.limit
}

// Window returns the window length as stored, in whole seconds.
func (l *WindowedLimiter) Window() time.Duration {
	return l.window
}

func wrapStoreErr(op, key string, err error) error {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return err
	}

	return &StoreError{Op: op, Key: key, Err: err}
}

// Compile-time check.
var _ Limiter = (*WindowedLimiter)(nil)
