package ratelimit

import (
	"context"
	"fmt"
)

// PolicyLimiter enforces a Policy by running one WindowedLimiter per scope window.
type PolicyLimiter struct {
	store    Store
	prefix   string
	opts     []Option
	limiters map[Scope][]*WindowedLimiter
}

// NewPolicyLimiter builds the limiters for every window in policy.
func NewPolicyLimiter(store Store, prefix string, policy *Policy, opts ...Option) (*PolicyLimiter, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is required", ErrInvalidConfig)
	}

	l := &PolicyLimiter{
		store:    store,
		prefix:   prefix,
		opts:     opts,
		limiters: make(map[Scope][]*WindowedLimiter, len(policy.Limits)),
	}

	for scope, limits := range policy.Limits {
		for _, limit := range limits {
			limiter, err := l.build(string(scope), scope, limit)
			if err != nil {
				return nil, err
			}

			l.limiters[scope] = append(l.limiters[scope], limiter)
		}
	}

	return l, nil
}

// Allow checks every window of every scope in order and stops at the first rejection,
// which is returned as a *LimitExceeded. Windows checked before it keep their increment.
func (l *PolicyLimiter) Allow(ctx context.Context, clientKey string, scopes []Scope) error {
	for _, scope := range scopes {
		for _, limiter := range l.limiters[scope] {
			if err := limiter.Check(ctx, clientKey); err != nil {
				return err
			}
		}
	}

	return nil
}

// AllowCustom applies endpoint-specific limits, keyed by route template.
func (l *PolicyLimiter) AllowCustom(ctx context.Context, clientKey, route string, limits []LimitConfig) error {
	for _, limit := range limits {
		limiter, err := l.build("custom:"+route, "", limit)
		if err != nil {
			return err
		}

		if err := limiter.Check(ctx, clientKey); err != nil {
			return err
		}
	}

	return nil
}

// Limiters returns the limiters enforcing scope, in policy order.
func (l *PolicyLimiter) Limiters(scope Scope) []*WindowedLimiter {
	return l.limiters[scope]
}

// Store returns the underlying counter store.
func (l *PolicyLimiter) Store() Store {
	return l.store
}

// build keys each window separately so windows of the same scope never share counters.
func (l *PolicyLimiter) build(name string, scope Scope, limit LimitConfig) (*WindowedLimiter, error) {
	prefix := fmt.Sprintf("%s:%s:%d", l.prefix, name, limit.Window.Milliseconds())
	opts := append([]Option{WithScope(scope)}, l.opts...)

	return New(l.store, prefix, limit.Max, limit.Window, opts...)
}
