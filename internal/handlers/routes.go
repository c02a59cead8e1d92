package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/windowlimit/internal/ratelimit"
)

// RegisterRoutes registers the limiter API. Both endpoints go through the HTTP
// rate limiting middleware: checks count as writes and lookups as reads. The
// middleware keys its counters apart from the ones the API reports on.
func RegisterRoutes(api huma.API, limits *LimitHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "check-limit",
		Method:        http.MethodPost,
		DefaultStatus: http.StatusOK,
		Path:          "/limits/{identifier}/check",
		Summary:       "Check a limit",
		Description:   "Counts one call for the identifier and reports whether it is within the limit.",
		Tags:          []string{"Limits"},
		Errors:        []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ratelimit.ScopeWrite},
		},
	}, limits.Check)

	huma.Register(api, huma.Operation{
		OperationID: "get-limit",
		Method:      http.MethodGet,
		Path:        "/limits/{identifier}",
		Summary:     "Inspect a limit",
		Description: "Returns the remaining calls and seconds until reset without counting a call.",
		Tags:        []string{"Limits"},
		Errors:      []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ratelimit.ScopeRead},
		},
	}, limits.Status)
}
