package logger

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const requestIDContextKey contextKey = iota

// WithRequestID stamps the correlation id that FromCtx picks up onto ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFrom returns the correlation id, or "" outside a request.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// FromCtx returns the global logger, tagged with the request id when the
// context carries one. Every log line from one request shares the same id.
func FromCtx(ctx context.Context) *zap.Logger {
	if id := RequestIDFrom(ctx); id != "" {
		return L().With(zap.String("request_id", id))
	}
	return L()
}
