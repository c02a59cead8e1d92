package handlers

import (
	"context"

	"github.com/serroba/windowlimit/internal/analytics"
)

type requestMetaKey struct{}

// RequestMeta holds HTTP request metadata attached to rejection events.
type RequestMeta struct {
	RequestID string
	ClientIP  string
	UserAgent string
	Referrer  string
	Method    string
	Path      string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}

// Annotate copies the request fields onto event, keeping any already set.
func (m RequestMeta) Annotate(event *analytics.LimitExceededEvent) {
	if event.RequestID == "" {
		event.RequestID = m.RequestID
	}

	if event.ClientIP == "" {
		event.ClientIP = m.ClientIP
	}

	if event.UserAgent == "" {
		event.UserAgent = m.UserAgent
	}

	if event.Method == "" {
		event.Method = m.Method
	}

	if event.Path == "" {
		event.Path = m.Path
	}
}
