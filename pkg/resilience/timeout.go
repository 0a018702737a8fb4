// Package resilience provides timeout management for operations that leave
// the process: database queries, card processor calls, and the HTTP surface.
package resilience

import (
	"context"
	"time"
)

// TimeoutConfig holds timeout durations for different operation types
type TimeoutConfig struct {
	// DatabaseQuery is the timeout for individual database queries
	DatabaseQuery time.Duration

	// DatabaseTransaction is the timeout for multi-statement transactions
	DatabaseTransaction time.Duration

	// ExternalAPI is the timeout for card processor calls
	ExternalAPI time.Duration

	// HTTPRequest is the overall budget for an inbound HTTP request
	HTTPRequest time.Duration
}

// DefaultTimeouts returns production timeout values
func DefaultTimeouts() *TimeoutConfig {
	return &TimeoutConfig{
		DatabaseQuery:       5 * time.Second,
		DatabaseTransaction: 15 * time.Second,
		ExternalAPI:         30 * time.Second,
		HTTPRequest:         60 * time.Second,
	}
}

// DatabaseQueryContext creates a context with database query timeout
func (tc *TimeoutConfig) DatabaseQueryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, tc.DatabaseQuery)
}

// DatabaseTransactionContext creates a context with transaction timeout
func (tc *TimeoutConfig) DatabaseTransactionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, tc.DatabaseTransaction)
}

// ExternalAPIContext creates a context with external API timeout
func (tc *TimeoutConfig) ExternalAPIContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, tc.ExternalAPI)
}

// HTTPRequestContext creates a context with HTTP request timeout
func (tc *TimeoutConfig) HTTPRequestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, tc.HTTPRequest)
}
