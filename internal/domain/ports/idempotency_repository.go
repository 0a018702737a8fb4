package ports

import (
	"context"

	"github.com/corepay/payment-gateway/internal/domain/models"
)

// IdempotencyRepository is the durable layer of the idempotency cache.
//
// PutIfAbsent must be first-writer-wins: under concurrent writes for the same
// (scope, key) exactly one row survives and the method returns the surviving
// record, whether or not it was ours.
type IdempotencyRepository interface {
	Get(ctx context.Context, tx DBTX, scope models.IdempotencyScope, key string) (*models.IdempotencyRecord, error)
	PutIfAbsent(ctx context.Context, tx DBTX, record *models.IdempotencyRecord) (*models.IdempotencyRecord, error)
}
