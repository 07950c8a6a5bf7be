// Package observability carries the request-scoped logging context and the
// in-process engine counters.
package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestContext ties every log line of one inbound event to a single minted
// request ID, so the intake handler and the engine pipeline can be correlated
// in the logs.
type RequestContext struct {
	RequestID string
	UserID    int32
	EventType string
	StartTime time.Time
}

// NewRequestContext mints a request context with a fresh request ID.
func NewRequestContext(userID int32, eventType string) *RequestContext {
	return &RequestContext{
		RequestID: uuid.New().String(),
		UserID:    userID,
		EventType: eventType,
		StartTime: time.Now(),
	}
}

// Duration returns the elapsed time since the request started.
func (r *RequestContext) Duration() time.Duration {
	return time.Since(r.StartTime)
}

type ctxKey struct{}

// WithRequestContext attaches the request context to the context.
func WithRequestContext(ctx context.Context, reqCtx *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, reqCtx)
}

// FromContext extracts the request context, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	reqCtx, ok := ctx.Value(ctxKey{}).(*RequestContext)
	return reqCtx, ok
}

// RequestID returns the request ID attached to the context, or "" when the
// call did not come through the event intake.
func RequestID(ctx context.Context) string {
	if reqCtx, ok := FromContext(ctx); ok {
		return reqCtx.RequestID
	}
	return ""
}
