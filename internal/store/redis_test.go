package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/windowlimit/internal/ratelimit"
	"github.com/serroba/windowlimit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*miniredis.Miniredis, *redis.Client, *store.RedisCounterStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return mr, client, store.NewRedisCounterStore(client)
}

func TestRedisCounterStore_IncrementWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("sets expiry only on the increment that creates the key", func(t *testing.T) {
		mr, _, s := newMiniRedisStore(t)

		first, err := s.IncrementWindow(ctx, "rl:user", 10*time.Second)

		require.NoError(t, err)
		assert.Equal(t, int64(1), first.Count)
		assert.Equal(t, 10*time.Second, first.TTL)

		mr.FastForward(4 * time.Second)

		second, err := s.IncrementWindow(ctx, "rl:user", 10*time.Second)

		require.NoError(t, err)
		assert.Equal(t, int64(2), second.Count)
		assert.Equal(t, 6*time.Second, second.TTL)
		assert.Equal(t, 6*time.Second, mr.TTL("rl:user"))
	})

	t.Run("starts a new window after expiry", func(t *testing.T) {
		mr, _, s := newMiniRedisStore(t)

		_, _ = s.IncrementWindow(ctx, "rl:user", time.Second)
		_, _ = s.IncrementWindow(ctx, "rl:user", time.Second)

		mr.FastForward(2 * time.Second)

		counter, err := s.IncrementWindow(ctx, "rl:user", time.Second)

		require.NoError(t, err)
		assert.Equal(t, int64(1), counter.Count)
	})

	t.Run("attaches an expiry to a counter left without one", func(t *testing.T) {
		mr, _, s := newMiniRedisStore(t)
		require.NoError(t, mr.Set("rl:user", "5"))

		counter, err := s.IncrementWindow(ctx, "rl:user", 30*time.Second)

		require.NoError(t, err)
		assert.Equal(t, int64(6), counter.Count)
		assert.Equal(t, 30*time.Second, mr.TTL("rl:user"))
	})

	t.Run("reloads the script after the cache is flushed", func(t *testing.T) {
		_, client, s := newMiniRedisStore(t)

		_, err := s.IncrementWindow(ctx, "rl:user", time.Minute)
		require.NoError(t, err)

		require.NoError(t, client.ScriptFlush(ctx).Err())

		counter, err := s.IncrementWindow(ctx, "rl:user", time.Minute)

		require.NoError(t, err)
		assert.Equal(t, int64(2), counter.Count)
	})
}

func TestRedisCounterStore_GetAndTTL(t *testing.T) {
	ctx := context.Background()

	t.Run("absent key reads as zero and no key", func(t *testing.T) {
		_, _, s := newMiniRedisStore(t)

		count, err := s.Get(ctx, "rl:missing")
		require.NoError(t, err)
		assert.Zero(t, count)

		ttl, err := s.TTL(ctx, "rl:missing")
		require.NoError(t, err)
		assert.Equal(t, ratelimit.TTLNoKey, ttl)
	})

	t.Run("key without expiry reports no expiry", func(t *testing.T) {
		mr, _, s := newMiniRedisStore(t)
		require.NoError(t, mr.Set("rl:user", "3"))

		count, err := s.Get(ctx, "rl:user")
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		ttl, err := s.TTL(ctx, "rl:user")
		require.NoError(t, err)
		assert.Equal(t, ratelimit.TTLNoExpiry, ttl)
	})

	t.Run("non-numeric value is a store error", func(t *testing.T) {
		mr, _, s := newMiniRedisStore(t)
		require.NoError(t, mr.Set("rl:user", "not-a-number"))

		_, err := s.Get(ctx, "rl:user")

		require.Error(t, err)

		var connErr *ratelimit.ConnectionError
		assert.NotErrorAs(t, err, &connErr)
	})
}

func TestRedisCounterStore_ConnectionErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("closed client is a connection error", func(t *testing.T) {
		_, client, s := newMiniRedisStore(t)
		require.NoError(t, client.Close())

		_, err := s.Get(ctx, "rl:user")

		var connErr *ratelimit.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.ErrorIs(t, err, redis.ErrClosed)
	})

	t.Run("stopped server is a connection error", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { _ = client.Close() })

		s := store.NewRedisCounterStore(client)
		mr.Close()

		_, err := s.IncrementWindow(ctx, "rl:user", time.Minute)

		var connErr *ratelimit.ConnectionError
		assert.ErrorAs(t, err, &connErr)
	})
}
