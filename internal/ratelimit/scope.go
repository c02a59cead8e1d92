package ratelimit

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Scope categorizes a request for rate limiting purposes.
// Each scope carries its own set of windows in a Policy.
type Scope string

const (
	// ScopeGlobal applies to all requests regardless of type.
	ScopeGlobal Scope = "global"
	// ScopeRead applies to read operations (GET, HEAD, OPTIONS).
	ScopeRead Scope = "read"
	// ScopeWrite applies to write operations (POST, PUT, PATCH, DELETE).
	ScopeWrite Scope = "write"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint rate limit configuration,
// attached to Huma operations via the Metadata field.
type EndpointConfig struct {
	// Scope overrides method-based scope detection. Ignored when Limits is set.
	Scope Scope

	// Limits replaces the policy limits for this endpoint. Counters are keyed by
	// the route template, so every request matching the route shares them.
	Limits []LimitConfig

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// ScopeResolver determines which scopes apply to a given request.
type ScopeResolver interface {
	Resolve(ctx huma.Context) []Scope
}

// MethodScopeResolver resolves scopes based on HTTP method.
type MethodScopeResolver struct {
	readMethods map[string]struct{}
}

// NewMethodScopeResolver creates a resolver treating GET, HEAD and OPTIONS as reads.
func NewMethodScopeResolver() *MethodScopeResolver {
	return &MethodScopeResolver{
		readMethods: map[string]struct{}{
			http.MethodGet:     {},
			http.MethodHead:    {},
			http.MethodOptions: {},
		},
	}
}

// Resolve returns the global scope plus read or write.
func (r *MethodScopeResolver) Resolve(ctx huma.Context) []Scope {
	if _, ok := r.readMethods[ctx.Method()]; ok {
		return []Scope{ScopeGlobal, ScopeRead}
	}

	return []Scope{ScopeGlobal, ScopeWrite}
}

// OperationScopeResolver checks operation metadata first, then falls back.
type OperationScopeResolver struct {
	fallback ScopeResolver
}

// NewOperationScopeResolver creates an operation-aware resolver falling back to HTTP methods.
func NewOperationScopeResolver() *OperationScopeResolver {
	return &OperationScopeResolver{
		fallback: NewMethodScopeResolver(),
	}
}

// Resolve returns the scopes for a request.
func (r *OperationScopeResolver) Resolve(ctx huma.Context) []Scope {
	if cfg := GetEndpointConfig(ctx); cfg != nil && cfg.Scope != "" {
		return []Scope{ScopeGlobal, cfg.Scope}
	}

	return r.fallback.Resolve(ctx)
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
