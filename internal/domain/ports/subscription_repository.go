package ports

import (
	"context"
	"time"

	"github.com/corepay/payment-gateway/internal/domain/models"
)

// SubscriptionRepository persists subscriptions.
//
// Update is a conditional write: it matches on (id, version) and fails with
// domain.ErrVersionConflict when another writer got there first. The billing
// sweep and the webhook processor both mutate subscriptions, so every update
// path goes through the version guard.
type SubscriptionRepository interface {
	Create(ctx context.Context, tx DBTX, sub *models.Subscription) error
	GetBySubscriptionID(ctx context.Context, tx DBTX, subscriptionID string) (*models.Subscription, error)
	Update(ctx context.Context, tx DBTX, sub *models.Subscription) error
	ListByCustomer(ctx context.Context, tx DBTX, customerID string) ([]*models.Subscription, error)
	// ListDueForBilling returns active subscriptions whose next billing date
	// is on or before asOf, oldest due first
	ListDueForBilling(ctx context.Context, tx DBTX, asOf time.Time, limit int32) ([]*models.Subscription, error)
}
