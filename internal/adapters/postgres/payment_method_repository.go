package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
)

// PaymentMethodRepository implements ports.PaymentMethodRepository
type PaymentMethodRepository struct{}

// NewPaymentMethodRepository creates a payment method repository
func NewPaymentMethodRepository() *PaymentMethodRepository {
	return &PaymentMethodRepository{}
}

const paymentMethodColumns = `
	id, customer_id, type, last4_digits, expiration_month, expiration_year,
	cardholder_name, is_default, created_at, updated_at`

// Create inserts a stored payment method
func (r *PaymentMethodRepository) Create(ctx context.Context, tx ports.DBTX, pm *models.PaymentMethod) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payment_methods (
			id, customer_id, type, last4_digits, expiration_month, expiration_year,
			cardholder_name, is_default, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pm.ID, pm.CustomerID, string(pm.Type), pm.Last4Digits,
		pm.ExpirationMonth, pm.ExpirationYear, pm.CardholderName, pm.IsDefault,
		toTimestamptz(pm.CreatedAt), toTimestamptz(pm.UpdatedAt),
	)
	return err
}

// GetByID returns the payment method with the given id
func (r *PaymentMethodRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*models.PaymentMethod, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+paymentMethodColumns+`
		FROM payment_methods
		WHERE id = $1`, id)
	return scanPaymentMethod(row)
}

// FindByCard locates the customer's newest stored instrument matching the
// card fingerprint
func (r *PaymentMethodRepository) FindByCard(ctx context.Context, tx ports.DBTX, customerID, last4 string, expMonth, expYear int) (*models.PaymentMethod, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+paymentMethodColumns+`
		FROM payment_methods
		WHERE customer_id = $1 AND last4_digits = $2
		  AND expiration_month = $3 AND expiration_year = $4
		ORDER BY created_at DESC
		LIMIT 1`, customerID, last4, expMonth, expYear)
	return scanPaymentMethod(row)
}

func scanPaymentMethod(row pgx.Row) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	var pmType string
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&pm.ID, &pm.CustomerID, &pmType, &pm.Last4Digits,
		&pm.ExpirationMonth, &pm.ExpirationYear, &pm.CardholderName, &pm.IsDefault,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	pm.Type = models.PaymentMethodType(pmType)
	pm.CreatedAt = createdAt.Time.UTC()
	pm.UpdatedAt = updatedAt.Time.UTC()
	return &pm, nil
}
