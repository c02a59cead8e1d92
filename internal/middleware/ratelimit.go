package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/windowlimit/internal/analytics"
	"github.com/serroba/windowlimit/internal/handlers"
	"github.com/serroba/windowlimit/internal/messaging"
	"github.com/serroba/windowlimit/internal/ratelimit"
	"go.uber.org/zap"
)

var errMissingOperation = errors.New("missing operation in context")

// RateLimiter returns a Huma middleware that limits requests with a single
// windowed limiter keyed on client IP and User-Agent. Endpoints whose metadata
// disables rate limiting are passed through.
func RateLimiter(
	api huma.API,
	limiter ratelimit.Limiter,
	publish messaging.Publish[analytics.LimitExceededEvent],
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if cfg := ratelimit.GetEndpointConfig(ctx); cfg != nil && cfg.Disabled {
			next(ctx)

			return
		}

		if err := limiter.Check(ctx.Context(), clientKey(ctx)); err != nil {
			reject(api, ctx, err, publish, logger)

			return
		}

		ctx.SetHeader(handlers.HeaderLimit, strconv.FormatInt(limiter.Limit(), 10))

		next(ctx)
	}
}

// PolicyRateLimiter returns a Huma middleware that applies policy-based rate limiting.
// It uses a ScopeResolver to determine which scopes apply to each request,
// then checks all applicable limits from the policy.
//
// Per-endpoint configuration can be provided via operation metadata using
// ratelimit.MetadataKey. This allows endpoints to:
//   - Disable rate limiting entirely (Disabled: true)
//   - Override the scope detection (Scope: ratelimit.ScopeRead)
//   - Define custom limits (Limits: []ratelimit.LimitConfig{...})
//
// Custom limits are keyed by the operation's route template (e.g. "/limits/{identifier}"),
// so all paths matching one route share counters per client.
func PolicyRateLimiter(
	api huma.API,
	limiter *ratelimit.PolicyLimiter,
	resolver ratelimit.ScopeResolver,
	publish messaging.Publish[analytics.LimitExceededEvent],
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		key := clientKey(ctx)
		cfg := ratelimit.GetEndpointConfig(ctx)

		var err error

		switch {
		case cfg != nil && cfg.Disabled:
			logger.Debug("rate limiting disabled for endpoint",
				zap.String("path", operationPath(ctx)), zap.String("method", ctx.Method()))
		case cfg != nil && len(cfg.Limits) > 0:
			path := operationPath(ctx)
			if path == "" {
				logger.Error("missing operation in context for rate limiting")
				_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", errMissingOperation)

				return
			}

			err = limiter.AllowCustom(ctx.Context(), key, path, cfg.Limits)
		default:
			err = limiter.Allow(ctx.Context(), key, resolver.Resolve(ctx))
		}

		if err != nil {
			reject(api, ctx, err, publish, logger)

			return
		}

		next(ctx)
	}
}

// reject answers a failed check: 429 with rate limit headers for a rejection,
// 503 when the store could not be reached.
func reject(
	api huma.API,
	ctx huma.Context,
	err error,
	publish messaging.Publish[analytics.LimitExceededEvent],
	logger *zap.Logger,
) {
	path := operationPath(ctx)

	exceeded, ok := ratelimit.IsLimitExceeded(err)
	if !ok {
		logger.Error("rate limit check failed", zap.String("path", path), zap.Error(err))
		_ = huma.WriteErr(api, ctx, http.StatusServiceUnavailable, "rate limit store unavailable")

		return
	}

	ip := clientIP(ctx)

	logger.Warn("rate limit exceeded",
		zap.String("path", path),
		zap.String("method", ctx.Method()),
		zap.String("scope", string(exceeded.Scope)),
		zap.Int64("count", exceeded.Count),
		zap.Int64("max", exceeded.Limit),
		zap.Duration("window", exceeded.Window),
		zap.String("client_ip", ip),
	)

	event := analytics.NewLimitExceededEvent(exceeded)
	event.Path = path
	event.Method = ctx.Method()
	event.ClientIP = ip
	handlers.RequestMetaFromContext(ctx.Context()).Annotate(event)

	if err := publish(ctx.Context(), event); err != nil {
		logger.Error("failed to publish limit exceeded event", zap.Error(err))
	}

	for name, values := range handlers.RejectionHeaders(exceeded.Limit, exceeded.RetryAfter) {
		ctx.SetHeader(name, values[0])
	}

	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, exceeded.Error())
}

// operationPath extracts the route template from the operation, if available.
func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}

// clientKey generates a unique key for rate limiting based on IP and User-Agent.
func clientKey(ctx huma.Context) string {
	ip := clientIP(ctx)
	ua := ctx.Header("User-Agent")

	hash := sha256.Sum256([]byte(ip + "|" + ua))

	return hex.EncodeToString(hash[:])
}

// clientIP extracts the client IP from the request, considering proxies.
func clientIP(ctx huma.Context) string {
	// X-Forwarded-For may hold a chain; the first entry is the original client.
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if addr == "" {
		addr = ctx.Host()
	}

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
