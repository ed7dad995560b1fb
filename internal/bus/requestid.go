package bus

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// NewRequestID creates a request id for tracing.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext reads request id from context.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDContextKey{})
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// EnsureRequestID returns ctx unchanged when it already carries a request id,
// otherwise a child context with a fresh one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}
