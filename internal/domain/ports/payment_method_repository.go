package ports

import (
	"context"

	"github.com/corepay/payment-gateway/internal/domain/models"
)

// PaymentMethodRepository persists tokenized payment instruments.
type PaymentMethodRepository interface {
	Create(ctx context.Context, tx DBTX, pm *models.PaymentMethod) error
	GetByID(ctx context.Context, tx DBTX, id string) (*models.PaymentMethod, error)
	// FindByCard locates an existing instrument for the customer matching
	// last4 + expiry, so repeated subscription creation reuses the record
	FindByCard(ctx context.Context, tx DBTX, customerID, last4 string, expMonth, expYear int) (*models.PaymentMethod, error)
}
