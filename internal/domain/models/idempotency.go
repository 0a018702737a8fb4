package models

import "time"

// IdempotencyScope partitions idempotency keys per operation family so a
// purchase and a refund sharing a caller key can never collide.
type IdempotencyScope string

const (
	ScopePurchase  IdempotencyScope = "purchase"
	ScopeAuthorize IdempotencyScope = "authorize"
	ScopeRefund    IdempotencyScope = "refund"
	ScopeVoid      IdempotencyScope = "void"
	ScopeWebhook   IdempotencyScope = "webhook"
)

// IdempotencyRecord maps a (scope, key) pair to the serialized result of the
// first completed operation. Once written the result is immutable and is
// returned verbatim to every duplicate submission.
type IdempotencyRecord struct {
	Scope     IdempotencyScope
	Key       string
	Result    []byte
	CreatedAt time.Time
	ExpiresAt *time.Time
}
