// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware and callers set values; the change-tracking core and the sinks read them
// without importing net/http.
//
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//	ctx = requestcontext.WithOriginator(ctx, "user-42")
//	now := requestcontext.Now(ctx)
//
// Tests inject a fixed clock with WithTime.
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	originatorKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyOriginator  = originatorKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// Originator retrieves the identity that initiated the current operation.
// Returns an empty string if not set.
func Originator(ctx context.Context) string {
	if originator, ok := ctx.Value(ContextKeyOriginator).(string); ok {
		return originator
	}
	return ""
}

// WithOriginator injects the initiating identity into the context.
func WithOriginator(ctx context.Context, originator string) context.Context {
	return context.WithValue(ctx, ContextKeyOriginator, originator)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, relay, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Handler unit tests that need deterministic event timestamps
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
