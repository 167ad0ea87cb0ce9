package observability

import (
	"context"

	"github.com/google/uuid"
)

// Log attribute keys filled from the request context.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
	UserIDKey        = "user_id"
)

type ctxKey int

const (
	correlationIDCtx ctxKey = iota
	requestIDCtx
	userIDCtx
)

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithCorrelationID tags ctx with the id that follows a subscribe, webhook
// or authorize call into its outbox events. An empty id gets a fresh one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return withValue(ctx, correlationIDCtx, id)
}

// CorrelationIDFromContext returns "" when none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDCtx)
}

// RequestIDFromContext returns "" outside an HTTP request.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDCtx)
}

// WithUserID records the authenticated subscriber.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDCtx, userID)
}

// UserIDFromContext returns "" for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDCtx)
}

// NewRequestContext starts an HTTP request: a fresh request id, and the
// caller's correlation id when it sent one.
func NewRequestContext(ctx context.Context, correlationID string) context.Context {
	ctx = withValue(ctx, requestIDCtx, uuid.NewString())
	return WithCorrelationID(ctx, correlationID)
}
