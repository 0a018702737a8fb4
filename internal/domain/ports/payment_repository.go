package ports

import (
	"context"

	"github.com/corepay/payment-gateway/internal/domain/models"
)

// PaymentRepository persists charge outcomes.
type PaymentRepository interface {
	Create(ctx context.Context, tx DBTX, payment *models.Payment) error
	GetByPaymentID(ctx context.Context, tx DBTX, paymentID string) (*models.Payment, error)
	// UpdateStatusIf transitions payment status only when the row is still in
	// one of the expected statuses. Returns (false, nil) when the row exists
	// but was already past the transition: the caller treats that as an
	// idempotent no-op, not a failure.
	UpdateStatusIf(ctx context.Context, tx DBTX, paymentID string, expected []models.PaymentStatus, next models.PaymentStatus, gatewayTransactionID string) (bool, error)
	ListBySubscription(ctx context.Context, tx DBTX, subscriptionID string) ([]*models.Payment, error)
}
