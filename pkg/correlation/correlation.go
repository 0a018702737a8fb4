// Package correlation propagates a request-scoped correlation id as an
// explicit context value. Every boundary (HTTP handler, worker pool,
// scheduler sweep) stamps or forwards the id so a webhook can be traced from
// ingestion through async processing.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// HeaderName is the inbound/outbound HTTP header carrying the id
const HeaderName = "X-Correlation-Id"

// WithID returns a context carrying the given correlation id
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation id, or "" when none was set
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns the context's correlation id, generating and attaching a
// fresh one when absent
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithID(ctx, id), id
}
