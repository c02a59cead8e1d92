package ratelimit

import (
	"time"

	"go.uber.org/zap"
)

// Outcome classifies a limiter call for metrics.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeLimited Outcome = "limited"
	OutcomeError   Outcome = "error"
)

// Recorder receives one observation per store round trip.
type Recorder interface {
	Observe(op string, outcome Outcome, latency time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) Observe(string, Outcome, time.Duration) {}

// Option configures a WindowedLimiter.
type Option func(*WindowedLimiter)

// WithLogger sets the logger used for warnings such as keys without expiry. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *WindowedLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRecorder injects a metrics backend.
func WithRecorder(recorder Recorder) Option {
	return func(l *WindowedLimiter) {
		if recorder != nil {
			l.recorder = recorder
		}
	}
}

// WithScope tags LimitExceeded errors with the policy scope the limiter enforces.
func WithScope(scope Scope) Option {
	return func(l *WindowedLimiter) {
		l.scope = scope
	}
}
