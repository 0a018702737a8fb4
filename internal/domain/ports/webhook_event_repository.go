package ports

import (
	"context"
	"time"

	"github.com/corepay/payment-gateway/internal/domain/models"
)

// WebhookEventRepository persists received processor notifications.
//
// Create must fail with domain.ErrDuplicateEvent when a row with the same
// external event id already exists; the unique constraint is the dedup
// mechanism, not an advisory check.
type WebhookEventRepository interface {
	Create(ctx context.Context, tx DBTX, event *models.WebhookEvent) error
	GetByEventID(ctx context.Context, tx DBTX, eventID string) (*models.WebhookEvent, error)
	// UpdateProcessingResult records the outcome of one processing attempt
	UpdateProcessingResult(ctx context.Context, tx DBTX, event *models.WebhookEvent) error
	// ListUnprocessed returns processed=false rows, oldest received first
	ListUnprocessed(ctx context.Context, tx DBTX, limit int32) ([]*models.WebhookEvent, error)
	// CountUnprocessedSince is used by operational stats endpoints
	CountUnprocessedSince(ctx context.Context, tx DBTX, since time.Time) (int64, error)
}
