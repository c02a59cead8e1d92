package analytics

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/windowlimit/internal/ratelimit"
)

// TopicLimitExceeded carries LimitExceededEvent messages.
const TopicLimitExceeded = "ratelimit.exceeded"

// LimitExceededEvent represents an event emitted when a request is rejected by the limiter.
type LimitExceededEvent struct {
	ID         string        `json:"id"`
	Identifier string        `json:"identifier"`
	Scope      string        `json:"scope,omitempty"`
	Count      int64         `json:"count"`
	Limit      int64         `json:"limit"`
	Window     time.Duration `json:"window"`
	RetryAfter time.Duration `json:"retryAfter"`
	Path       string        `json:"path,omitempty"`
	Method     string        `json:"method,omitempty"`
	ClientIP   string        `json:"clientIp,omitempty"`
	UserAgent  string        `json:"userAgent,omitempty"`
	RequestID  string        `json:"requestId,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// NewLimitExceededEvent builds an event from a limiter rejection.
func NewLimitExceededEvent(exceeded *ratelimit.LimitExceeded) *LimitExceededEvent {
	return &LimitExceededEvent{
		ID:         uuid.NewString(),
		Identifier: exceeded.Identifier,
		Scope:      string(exceeded.Scope),
		Count:      exceeded.Count,
		Limit:      exceeded.Limit,
		Window:     exceeded.Window,
		RetryAfter: exceeded.RetryAfter,
		OccurredAt: time.Now().UTC(),
	}
}
