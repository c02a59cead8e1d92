package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/windowlimit/internal/ratelimit"
)

// Collector records limiter activity as Prometheus metrics.
// It implements ratelimit.Recorder.
type Collector struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewCollector creates a collector registered on registry.
// If registry is nil a fresh one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windowlimit",
			Name:      "calls_total",
			Help:      "Limiter store calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "windowlimit",
			Name:      "store_latency_seconds",
			Help:      "Store round-trip latency by operation.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"op"}),
	}

	registry.MustRegister(c.calls, c.latency)

	return c
}

// Observe records one limiter call.
func (c *Collector) Observe(op string, outcome ratelimit.Outcome, latency time.Duration) {
	c.calls.WithLabelValues(op, string(outcome)).Inc()
	c.latency.WithLabelValues(op).Observe(latency.Seconds())
}

// Handler exposes the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Compile-time check.
var _ ratelimit.Recorder = (*Collector)(nil)
