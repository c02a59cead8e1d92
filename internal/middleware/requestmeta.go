package middleware

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/jaevor/go-nanoid"
	"github.com/serroba/windowlimit/internal/handlers"
)

const (
	requestIDLength  = 21
	maxIncomingIDLen = 128
)

// RequestMeta is a middleware that adds the request id, client IP, user-agent,
// and referrer to the request context. An incoming X-Request-ID is kept,
// otherwise a new one is generated; either way it is echoed in the response.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	newID, _ := nanoid.Standard(requestIDLength)

	return func(ctx huma.Context, next func(huma.Context)) {
		requestID := ctx.Header(handlers.HeaderRequestID)
		if requestID == "" || len(requestID) > maxIncomingIDLen {
			requestID = newID()
		}

		ctx.SetHeader(handlers.HeaderRequestID, requestID)

		meta := handlers.RequestMeta{
			RequestID: requestID,
			ClientIP:  clientIP(ctx),
			UserAgent: ctx.Header("User-Agent"),
			Referrer:  ctx.Header("Referer"),
			Method:    ctx.Method(),
			Path:      operationPath(ctx),
		}

		newCtx := handlers.ContextWithRequestMeta(ctx.Context(), meta)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}
