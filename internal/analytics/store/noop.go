package store

import (
	"context"

	"github.com/serroba/windowlimit/internal/analytics"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of analytics.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op analytics store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveLimitExceeded(_ context.Context, event *analytics.LimitExceededEvent) error {
	n.logger.Info("limit exceeded event received",
		zap.String("id", event.ID),
		zap.String("identifier", event.Identifier),
		zap.String("scope", event.Scope),
		zap.Int64("count", event.Count),
		zap.Int64("limit", event.Limit),
		zap.Duration("window", event.Window),
		zap.String("path", event.Path),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}

// Compile-time check.
var _ analytics.Store = (*Noop)(nil)
