package analytics

import (
	"context"

	"github.com/serroba/windowlimit/internal/messaging"
)

// Store defines the interface for persisting analytics events.
type Store interface {
	SaveLimitExceeded(ctx context.Context, event *LimitExceededEvent) error
}

// NewLimitExceededHandler returns a consumer handler persisting events to store.
func NewLimitExceededHandler(store Store) messaging.Handler[LimitExceededEvent] {
	return func(ctx context.Context, event *LimitExceededEvent) error {
		return store.SaveLimitExceeded(ctx, event)
	}
}
