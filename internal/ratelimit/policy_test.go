package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/serroba/windowlimit/internal/ratelimit"
	"github.com/serroba/windowlimit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	t.Run("parses stacked windows per scope", func(t *testing.T) {
		policy, err := ratelimit.ParsePolicy("global=600/1m, write=60/1m,write=1000/1h")

		require.NoError(t, err)
		assert.Equal(t, []ratelimit.LimitConfig{{Window: time.Minute, Max: 600}}, policy.Limits[ratelimit.ScopeGlobal])
		assert.Equal(t, []ratelimit.LimitConfig{
			{Window: time.Minute, Max: 60},
			{Window: time.Hour, Max: 1000},
		}, policy.Limits[ratelimit.ScopeWrite])
	})

	t.Run("rejects malformed entries", func(t *testing.T) {
		for _, s := range []string{"", "global", "=1/1m", "global=1", "global=x/1m", "global=1/soon", "global=0/1m", "read=5/-1s"} {
			_, err := ratelimit.ParsePolicy(s)

			assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig, "policy %q", s)
		}
	})
}

func TestPolicyLimiter(t *testing.T) {
	ctx := context.Background()

	policy := &ratelimit.Policy{
		Limits: map[ratelimit.Scope][]ratelimit.LimitConfig{
			ratelimit.ScopeGlobal: {{Window: time.Minute, Max: 5}},
			ratelimit.ScopeWrite:  {{Window: time.Minute, Max: 2}},
		},
	}

	t.Run("allows requests under every limit", func(t *testing.T) {
		limiter, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", policy)
		require.NoError(t, err)

		for range 2 {
			assert.NoError(t, limiter.Allow(ctx, "client1", []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeWrite}))
		}
	})

	t.Run("reports the scope that was exceeded", func(t *testing.T) {
		limiter, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", policy)
		require.NoError(t, err)

		scopes := []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeWrite}

		for range 2 {
			require.NoError(t, limiter.Allow(ctx, "client1", scopes))
		}

		err = limiter.Allow(ctx, "client1", scopes)

		exceeded, ok := ratelimit.IsLimitExceeded(err)
		require.True(t, ok)
		assert.Equal(t, ratelimit.ScopeWrite, exceeded.Scope)
		assert.Equal(t, int64(3), exceeded.Count)
		assert.Equal(t, int64(2), exceeded.Limit)
		assert.Contains(t, err.Error(), "write scope")
	})

	t.Run("read scope is not affected by write exhaustion", func(t *testing.T) {
		limiter, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", policy)
		require.NoError(t, err)

		write := []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeWrite}
		read := []ratelimit.Scope{ratelimit.ScopeGlobal, ratelimit.ScopeRead}

		for range 3 {
			_ = limiter.Allow(ctx, "client1", write)
		}

		assert.NoError(t, limiter.Allow(ctx, "client1", read))
	})

	t.Run("scopes without limits are ignored", func(t *testing.T) {
		limiter, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", policy)
		require.NoError(t, err)

		for range 10 {
			assert.NoError(t, limiter.Allow(ctx, "client1", []ratelimit.Scope{ratelimit.ScopeRead}))
		}
	})

	t.Run("keys each window separately", func(t *testing.T) {
		limiter, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", policy)
		require.NoError(t, err)

		limiters := limiter.Limiters(ratelimit.ScopeWrite)
		require.Len(t, limiters, 1)
		assert.Equal(t, "rl:write:60000:client1", limiters[0].Key("client1"))
	})

	t.Run("custom limits are keyed by route", func(t *testing.T) {
		limiter, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", policy)
		require.NoError(t, err)

		custom := []ratelimit.LimitConfig{{Window: time.Minute, Max: 1}}

		require.NoError(t, limiter.AllowCustom(ctx, "client1", "/a", custom))
		assert.ErrorIs(t, limiter.AllowCustom(ctx, "client1", "/a", custom), ratelimit.ErrLimitExceeded)
		assert.NoError(t, limiter.AllowCustom(ctx, "client1", "/b", custom))
	})

	t.Run("rejects a nil policy", func(t *testing.T) {
		_, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", nil)

		assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
	})

	t.Run("rejects invalid windows in the policy", func(t *testing.T) {
		bad := &ratelimit.Policy{Limits: map[ratelimit.Scope][]ratelimit.LimitConfig{
			ratelimit.ScopeGlobal: {{Window: time.Minute, Max: 0}},
		}}

		_, err := ratelimit.NewPolicyLimiter(store.NewMemoryStore(), "rl", bad)

		assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
	})
}
