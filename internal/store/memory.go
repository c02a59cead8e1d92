package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/windowlimit/internal/ratelimit"
)

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of ratelimit.Store.
// Its counters are local to the process; use it for tests and single-instance setups.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a store reading time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
		now:      now,
	}
}

func (m *MemoryStore) IncrementWindow(_ context.Context, key string, window time.Duration) (ratelimit.Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	c := m.live(key, now)
	if c == nil {
		c = &memoryCounter{
			expiresAt: now.Add(time.Duration(ratelimit.WindowSeconds(window)) * time.Second),
		}
		m.counters[key] = c
	}

	c.count++

	return ratelimit.Counter{Count: c.count, TTL: c.expiresAt.Sub(now)}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.live(key, m.now()); c != nil {
		return c.count, nil
	}

	return 0, nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if c := m.live(key, now); c != nil {
		return c.expiresAt.Sub(now), nil
	}

	return ratelimit.TTLNoKey, nil
}

// Sweep drops expired counters and returns how many were removed.
func (m *MemoryStore) Sweep(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	var removed int64

	for key, c := range m.counters {
		if !now.Before(c.expiresAt) {
			delete(m.counters, key)
			removed++
		}
	}

	return removed, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// live returns the counter at key, expiring it first when its window has passed.
// Callers must hold m.mu.
func (m *MemoryStore) live(key string, now time.Time) *memoryCounter {
	c, ok := m.counters[key]
	if !ok {
		return nil
	}

	if !now.Before(c.expiresAt) {
		delete(m.counters, key)

		return nil
	}

	return c
}

// Compile-time checks.
var (
	_ CounterStore = (*MemoryStore)(nil)
	_ Sweeper      = (*MemoryStore)(nil)
)
