package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/serroba/windowlimit/internal/metrics"
	"github.com/serroba/windowlimit/internal/ratelimit"
	"github.com/serroba/windowlimit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Run("counts limiter outcomes", func(t *testing.T) {
		collector := metrics.NewCollector(nil)
		limiter, err := ratelimit.New(store.NewMemoryStore(), "m", 1, time.Minute, ratelimit.WithRecorder(collector))
		require.NoError(t, err)

		_ = limiter.Check(context.Background(), "u")
		_ = limiter.Check(context.Background(), "u")
		_ = limiter.Check(context.Background(), "u")

		count, err := testutil.GatherAndCount(collector.Registry(), "windowlimit_calls_total")
		require.NoError(t, err)
		assert.Equal(t, 2, count, "one series per outcome")

		count, err = testutil.GatherAndCount(collector.Registry(), "windowlimit_store_latency_seconds")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("serves the exposition format", func(t *testing.T) {
		collector := metrics.NewCollector(nil)
		collector.Observe("check", ratelimit.OutcomeLimited, time.Millisecond)

		rec := httptest.NewRecorder()
		collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(body), `windowlimit_calls_total{op="check",outcome="limited"} 1`)
	})
}
