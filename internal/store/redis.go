package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/windowlimit/internal/ratelimit"
)

//go:embed fixed_window.lua
var fixedWindowSource string

// fixedWindowScript runs INCR and EXPIRE-on-create as one server-side step.
// Run tries EVALSHA first and falls back to EVAL when the script cache is empty.
var fixedWindowScript = redis.NewScript(fixedWindowSource)

// RedisCounterStore is a Redis implementation of ratelimit.Store.
type RedisCounterStore struct {
	client redis.UniversalClient
	target string
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{
		client: client,
		target: "redis",
	}
}

func (r *RedisCounterStore) IncrementWindow(
	ctx context.Context, key string, window time.Duration,
) (ratelimit.Counter, error) {
	res, err := fixedWindowScript.Run(ctx, r.client, []string{key}, ratelimit.WindowSeconds(window)).Int64Slice()
	if err != nil {
		return ratelimit.Counter{}, classify(r.target, err)
	}

	if len(res) != 2 {
		return ratelimit.Counter{}, fmt.Errorf("unexpected script reply of length %d", len(res))
	}

	return ratelimit.Counter{
		Count: res[0],
		TTL:   time.Duration(res[1]) * time.Second,
	}, nil
}

func (r *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	count, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}

		return 0, classify(r.target, err)
	}

	return count, nil
}

// TTL relies on go-redis returning the -2 and -1 replies unscaled.
func (r *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, classify(r.target, err)
	}

	return ttl, nil
}

// Ping checks Redis connectivity.
func (r *RedisCounterStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisCounterStore) Close() error {
	return r.client.Close()
}

// Compile-time check.
var _ CounterStore = (*RedisCounterStore)(nil)
