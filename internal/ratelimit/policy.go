package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LimitConfig is one fixed window: at most Max requests per Window.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

func (c LimitConfig) String() string {
	return fmt.Sprintf("%d/%s", c.Max, c.Window)
}

// Policy maps scopes to the windows enforced for them.
type Policy struct {
	Limits map[Scope][]LimitConfig
}

// DefaultPolicy returns the limits used when none are configured.
func DefaultPolicy() *Policy {
	return &Policy{
		Limits: map[Scope][]LimitConfig{
			ScopeGlobal: {{Window: time.Minute, Max: 600}},
			ScopeRead:   {{Window: time.Minute, Max: 300}},
			ScopeWrite:  {{Window: time.Minute, Max: 60}, {Window: time.Hour, Max: 1000}},
		},
	}
}

// ParsePolicy reads a policy of the form "global=600/1m,write=60/1m,write=1000/1h".
// A scope may appear several times to stack windows.
func ParsePolicy(s string) (*Policy, error) {
	policy := &Policy{Limits: make(map[Scope][]LimitConfig)}

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		scope, limit, ok := strings.Cut(entry, "=")
		if !ok || scope == "" {
			return nil, fmt.Errorf("%w: policy entry %q: want scope=max/window", ErrInvalidConfig, entry)
		}

		cfg, err := parseLimit(limit)
		if err != nil {
			return nil, fmt.Errorf("%w: policy entry %q: %w", ErrInvalidConfig, entry, err)
		}

		policy.Limits[Scope(scope)] = append(policy.Limits[Scope(scope)], cfg)
	}

	if len(policy.Limits) == 0 {
		return nil, fmt.Errorf("%w: empty policy", ErrInvalidConfig)
	}

	return policy, nil
}

func parseLimit(s string) (LimitConfig, error) {
	maxPart, windowPart, ok := strings.Cut(s, "/")
	if !ok {
		return LimitConfig{}, fmt.Errorf("missing window in %q", s)
	}

	maxReq, err := strconv.ParseInt(maxPart, 10, 64)
	if err != nil {
		return LimitConfig{}, err
	}

	window, err := time.ParseDuration(windowPart)
	if err != nil {
		return LimitConfig{}, err
	}

	if maxReq <= 0 || window <= 0 {
		return LimitConfig{}, fmt.Errorf("max and window must be positive in %q", s)
	}

	return LimitConfig{Window: window, Max: maxReq}, nil
}
