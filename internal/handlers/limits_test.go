package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/windowlimit/internal/analytics"
	"github.com/serroba/windowlimit/internal/handlers"
	"github.com/serroba/windowlimit/internal/ratelimit"
	"github.com/serroba/windowlimit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) IncrementWindow(context.Context, string, time.Duration) (ratelimit.Counter, error) {
	return ratelimit.Counter{}, errStoreDown
}

func (failingStore) Get(context.Context, string) (int64, error) {
	return 0, errStoreDown
}

func (failingStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, errStoreDown
}

type published struct {
	events []*analytics.LimitExceededEvent
}

func (p *published) publish(_ context.Context, event *analytics.LimitExceededEvent) error {
	p.events = append(p.events, event)

	return nil
}

func setupLimitAPI(t *testing.T, st ratelimit.Store, limit int64) (*chi.Mux, *published) {
	t.Helper()

	limiter, err := ratelimit.New(st, "api", limit, time.Minute)
	require.NoError(t, err)

	events := &published{}
	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	handlers.RegisterRoutes(api, handlers.NewLimitHandler(limiter, events.publish, zap.NewNop()))

	return router, events
}

func do(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestLimitHandler_Check(t *testing.T) {
	t.Run("allows calls up to the limit", func(t *testing.T) {
		router, _ := setupLimitAPI(t, store.NewMemoryStore(), 2)

		w := do(router, http.MethodPost, "/limits/user:1/check")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get(handlers.HeaderLimit))
		assert.Equal(t, "1", w.Header().Get(handlers.HeaderRemaining))
		assert.Equal(t, "60", w.Header().Get(handlers.HeaderReset))

		var body struct {
			Allowed   bool  `json:"allowed"`
			Remaining int64 `json:"remaining"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Allowed)
		assert.Equal(t, int64(1), body.Remaining)
	})

	t.Run("rejects with 429 and publishes an event", func(t *testing.T) {
		router, events := setupLimitAPI(t, store.NewMemoryStore(), 1)

		require.Equal(t, http.StatusOK, do(router, http.MethodPost, "/limits/user:1/check").Code)

		w := do(router, http.MethodPost, "/limits/user:1/check")

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get(handlers.HeaderRetryAfter))
		assert.Equal(t, "0", w.Header().Get(handlers.HeaderRemaining))
		require.Len(t, events.events, 1)
		assert.Equal(t, "user:1", events.events[0].Identifier)
		assert.Equal(t, int64(2), events.events[0].Count)
	})

	t.Run("identifiers are counted independently", func(t *testing.T) {
		router, _ := setupLimitAPI(t, store.NewMemoryStore(), 1)

		assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/limits/a/check").Code)
		assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/limits/b/check").Code)
	})

	t.Run("store failures are 503", func(t *testing.T) {
		router, events := setupLimitAPI(t, failingStore{}, 1)

		w := do(router, http.MethodPost, "/limits/user:1/check")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotContains(t, w.Body.String(), errStoreDown.Error())
		assert.Empty(t, events.events)
	})
}

func TestLimitHandler_Status(t *testing.T) {
	t.Run("reports a fresh identifier", func(t *testing.T) {
		router, _ := setupLimitAPI(t, store.NewMemoryStore(), 5)

		w := do(router, http.MethodGet, "/limits/nobody")

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Limit     int64 `json:"limit"`
			Remaining int64 `json:"remaining"`
			Reset     int64 `json:"reset"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, int64(5), body.Limit)
		assert.Equal(t, int64(5), body.Remaining)
		assert.Equal(t, ratelimit.NoActiveWindow, body.Reset)
	})

	t.Run("does not count a call", func(t *testing.T) {
		router, _ := setupLimitAPI(t, store.NewMemoryStore(), 1)

		for range 3 {
			require.Equal(t, http.StatusOK, do(router, http.MethodGet, "/limits/user:1").Code)
		}

		assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/limits/user:1/check").Code)
	})

	t.Run("store failures are 503", func(t *testing.T) {
		router, _ := setupLimitAPI(t, failingStore{}, 1)

		assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/limits/user:1").Code)
	})
}
