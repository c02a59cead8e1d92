package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/windowlimit/internal/ratelimit"
)

const pingTimeout = 2 * time.Second

// Checker defines the interface for checking a dependency.
type Checker interface {
	Ping(ctx context.Context) error
}

// RedisChecker adapts a redis client to Checker.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Handler handles health check operations.
type Handler struct {
	checks map[string]Checker
}

// NewHandler creates a health handler reporting the counter store.
func NewHandler(store Checker) *Handler {
	return &Handler{checks: map[string]Checker{"store": store}}
}

// Add registers another dependency under name.
func (h *Handler) Add(name string, checker Checker) {
	h.checks[name] = checker
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status string            `doc:"ok, or degraded when a dependency is unhealthy" example:"ok" json:"status"`
		Checks map[string]string `doc:"Per-dependency status"                             json:"checks"`
	}
}

// Check pings every dependency. A failing dependency is reported as a
// degraded status, but the probe itself still answers 200.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = "ok"
	resp.Body.Checks = make(map[string]string, len(h.checks))

	for _, name := range h.names() {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := h.checks[name].Ping(pingCtx)

		cancel()

		if err != nil {
			resp.Body.Checks[name] = "unhealthy"
			resp.Body.Status = "degraded"

			continue
		}

		resp.Body.Checks[name] = "healthy"
	}

	return resp, nil
}

func (h *Handler) names() []string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// RegisterRoutes registers health check routes. Health probes are never rate limited.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Check)
}
