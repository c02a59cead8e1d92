package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/windowlimit/internal/analytics"
	"github.com/serroba/windowlimit/internal/messaging"
	"github.com/serroba/windowlimit/internal/ratelimit"
	"go.uber.org/zap"
)

// LimitHandler exposes a limiter over HTTP so other services can check identifiers remotely.
type LimitHandler struct {
	limiter ratelimit.Limiter
	publish messaging.Publish[analytics.LimitExceededEvent]
	logger  *zap.Logger
}

// NewLimitHandler creates a new limit handler.
func NewLimitHandler(
	limiter ratelimit.Limiter,
	publish messaging.Publish[analytics.LimitExceededEvent],
	logger *zap.Logger,
) *LimitHandler {
	return &LimitHandler{
		limiter: limiter,
		publish: publish,
		logger:  logger,
	}
}

// Check counts one call for the identifier. A rejection is answered with 429
// and Retry-After; a store failure with 503.
func (h *LimitHandler) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	err := h.limiter.Check(ctx, req.Identifier)
	if exceeded, ok := ratelimit.IsLimitExceeded(err); ok {
		h.rejected(ctx, exceeded)

		return nil, huma.ErrorWithHeaders(
			huma.Error429TooManyRequests(exceeded.Error()),
			RejectionHeaders(exceeded.Limit, exceeded.RetryAfter),
		)
	}

	if err != nil {
		return nil, h.unavailable(req.Identifier, err)
	}

	remaining, reset, err := h.window(ctx, req.Identifier)
	if err != nil {
		return nil, h.unavailable(req.Identifier, err)
	}

	resp := &CheckResponse{
		Limit:     h.limiter.Limit(),
		Remaining: remaining,
		Reset:     reset,
	}
	resp.Body.Identifier = req.Identifier
	resp.Body.Allowed = true
	resp.Body.Limit = resp.Limit
	resp.Body.Remaining = remaining
	resp.Body.Reset = reset

	return resp, nil
}

// Status reports the current window without counting a call.
func (h *LimitHandler) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	remaining, reset, err := h.window(ctx, req.Identifier)
	if err != nil {
		return nil, h.unavailable(req.Identifier, err)
	}

	resp := &StatusResponse{}
	resp.Body.Identifier = req.Identifier
	resp.Body.Limit = h.limiter.Limit()
	resp.Body.Remaining = remaining
	resp.Body.Reset = reset

	return resp, nil
}

func (h *LimitHandler) window(ctx context.Context, identifier string) (int64, int64, error) {
	remaining, err := h.limiter.Remaining(ctx, identifier)
	if err != nil {
		return 0, 0, err
	}

	reset, err := h.limiter.TimeToReset(ctx, identifier)
	if err != nil {
		return 0, 0, err
	}

	return remaining, reset, nil
}

func (h *LimitHandler) rejected(ctx context.Context, exceeded *ratelimit.LimitExceeded) {
	h.logger.Info("limit exceeded",
		zap.String("identifier", exceeded.Identifier),
		zap.Int64("count", exceeded.Count),
		zap.Int64("limit", exceeded.Limit),
	)

	event := analytics.NewLimitExceededEvent(exceeded)
	RequestMetaFromContext(ctx).Annotate(event)

	if err := h.publish(ctx, event); err != nil {
		h.logger.Error("failed to publish limit exceeded event", zap.Error(err))
	}
}

func (h *LimitHandler) unavailable(identifier string, err error) error {
	h.logger.Error("rate limit store failure",
		zap.String("identifier", identifier),
		zap.Error(err),
	)

	return huma.Error503ServiceUnavailable("rate limit store unavailable")
}
