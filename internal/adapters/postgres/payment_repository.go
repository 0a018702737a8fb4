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

// PaymentRepository implements ports.PaymentRepository
type PaymentRepository struct{}

// NewPaymentRepository creates a payment repository
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

const paymentColumns = `
	id, payment_id, customer_id, subscription_id, amount, currency_code,
	status, gateway, gateway_transaction_id, description, last4_digits,
	idempotency_key, correlation_id, created_at, updated_at`

// Create inserts a payment row
func (r *PaymentRepository) Create(ctx context.Context, tx ports.DBTX, payment *models.Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (
			id, payment_id, customer_id, subscription_id, amount, currency_code,
			status, gateway, gateway_transaction_id, description, last4_digits,
			idempotency_key, correlation_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		payment.ID, payment.PaymentID, payment.CustomerID, payment.SubscriptionID,
		payment.Amount, payment.CurrencyCode, string(payment.Status),
		payment.Gateway, payment.GatewayTransactionID, payment.Description,
		payment.Last4Digits, payment.IdempotencyKey, payment.CorrelationID,
		toTimestamptz(payment.CreatedAt), toTimestamptz(payment.UpdatedAt),
	)
	return err
}

// GetByPaymentID returns the payment with the given public id
func (r *PaymentRepository) GetByPaymentID(ctx context.Context, tx ports.DBTX, paymentID string) (*models.Payment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE payment_id = $1`, paymentID)
	return scanPayment(row)
}

// UpdateStatusIf transitions the payment only from one of the expected
// statuses. Zero rows affected means the row was missing or already past
// the transition; both are idempotent no-ops for the caller.
func (r *PaymentRepository) UpdateStatusIf(ctx context.Context, tx ports.DBTX, paymentID string, expected []models.PaymentStatus, next models.PaymentStatus, gatewayTransactionID string) (bool, error) {
	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $3,
		    gateway_transaction_id = CASE WHEN $4 <> '' THEN $4 ELSE gateway_transaction_id END,
		    updated_at = now()
		WHERE payment_id = $1 AND status = ANY($2)`,
		paymentID, statuses, string(next), gatewayTransactionID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListBySubscription returns a subscription's payments, newest first
func (r *PaymentRepository) ListBySubscription(ctx context.Context, tx ports.DBTX, subscriptionID string) ([]*models.Payment, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE subscription_id = $1
		ORDER BY created_at DESC`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	var status string
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&payment.ID, &payment.PaymentID, &payment.CustomerID, &payment.SubscriptionID,
		&payment.Amount, &payment.CurrencyCode, &status,
		&payment.Gateway, &payment.GatewayTransactionID, &payment.Description,
		&payment.Last4Digits, &payment.IdempotencyKey, &payment.CorrelationID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	payment.Status = models.PaymentStatus(status)
	payment.CreatedAt = createdAt.Time.UTC()
	payment.UpdatedAt = updatedAt.Time.UTC()
	return &payment, nil
}
