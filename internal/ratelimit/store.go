package ratelimit

import (
	"context"
	"time"
)

// TTL sentinels returned by Store.TTL, mirroring the Redis TTL reply.
const (
	TTLNoKey    time.Duration = -2
	TTLNoExpiry time.Duration = -1
)

// Counter is the state of a window counter right after an increment.
type Counter struct {
	Count int64
	TTL   time.Duration
}

// Store defines the counter primitives a fixed-window limiter needs.
// Implementations must be safe for concurrent use from many processes.
type Store interface {
	// IncrementWindow atomically increments the counter at key and, when the
	// increment created it, sets its expiry to window. The expiry of an existing
	// counter is never extended. It returns the post-increment count and the
	// time left in the window, both read inside the same atomic step.
	IncrementWindow(ctx context.Context, key string, window time.Duration) (Counter, error)

	// Get returns the current counter value, or 0 when the key is absent.
	Get(ctx context.Context, key string) (count int64, err error)

	// TTL returns the time left before key expires, TTLNoKey when it does not
	// exist, or TTLNoExpiry when it exists without an expiry.
	TTL(ctx context.Context, key string) (ttl time.Duration, err error)
}

// WindowSeconds converts a window to the whole seconds stored as a key expiry.
// Fractions truncate; anything under a second is rounded up to one.
func WindowSeconds(window time.Duration) int64 {
	secs := int64(window / time.Second)
	if secs < 1 {
		return 1
	}

	return secs
}
