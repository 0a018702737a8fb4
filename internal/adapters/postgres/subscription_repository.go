package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
)

// SubscriptionRepository implements ports.SubscriptionRepository
type SubscriptionRepository struct{}

// NewSubscriptionRepository creates a subscription repository
func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{}
}

const subscriptionColumns = `
	id, subscription_id, customer_id, payment_method_id, status, amount,
	currency_code, name, description, interval_length, interval_unit,
	total_cycles, completed_cycles, start_date, next_billing_date, end_date,
	cancelled_at, cancel_reason, version, created_at, updated_at`

// Create inserts a subscription
func (r *SubscriptionRepository) Create(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (
			id, subscription_id, customer_id, payment_method_id, status, amount,
			currency_code, name, description, interval_length, interval_unit,
			total_cycles, completed_cycles, start_date, next_billing_date, end_date,
			cancelled_at, cancel_reason, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		sub.ID, sub.SubscriptionID, sub.CustomerID, sub.PaymentMethodID,
		string(sub.Status), sub.Amount, sub.CurrencyCode, sub.Name, sub.Description,
		sub.IntervalLength, string(sub.IntervalUnit),
		toNullableInt4(sub.TotalCycles), sub.CompletedCycles,
		toTimestamptz(sub.StartDate), toNullableTimestamptz(sub.NextBillingDate),
		toNullableTimestamptz(sub.EndDate), toNullableTimestamptz(sub.CancelledAt),
		sub.CancelReason, sub.Version,
		toTimestamptz(sub.CreatedAt), toTimestamptz(sub.UpdatedAt),
	)
	return err
}

// GetBySubscriptionID returns the subscription with the given public id
func (r *SubscriptionRepository) GetBySubscriptionID(ctx context.Context, tx ports.DBTX, subscriptionID string) (*models.Subscription, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE subscription_id = $1`, subscriptionID)
	return scanSubscription(row)
}

// Update writes the subscription guarded by its version: the row must still
// be at sub.Version or the write fails with domain.ErrVersionConflict. On
// success the in-memory version is bumped to match the row.
func (r *SubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = $3,
		    amount = $4,
		    payment_method_id = $5,
		    completed_cycles = $6,
		    next_billing_date = $7,
		    end_date = $8,
		    cancelled_at = $9,
		    cancel_reason = $10,
		    version = version + 1,
		    updated_at = $11
		WHERE subscription_id = $1 AND version = $2`,
		sub.SubscriptionID, sub.Version,
		string(sub.Status), sub.Amount, sub.PaymentMethodID,
		sub.CompletedCycles, toNullableTimestamptz(sub.NextBillingDate),
		toNullableTimestamptz(sub.EndDate), toNullableTimestamptz(sub.CancelledAt),
		sub.CancelReason, toTimestamptz(sub.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	sub.Version++
	return nil
}

// ListByCustomer returns all of a customer's subscriptions, newest first
func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, tx ports.DBTX, customerID string) ([]*models.Subscription, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE customer_id = $1
		ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListDueForBilling returns active subscriptions due on or before asOf,
// oldest due first
func (r *SubscriptionRepository) ListDueForBilling(ctx context.Context, tx ports.DBTX, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = $1 AND next_billing_date IS NOT NULL AND next_billing_date <= $2
		ORDER BY next_billing_date ASC
		LIMIT $3`,
		string(models.SubStatusActive), toTimestamptz(asOf), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var sub models.Subscription
	var status, intervalUnit string
	var totalCycles pgtype.Int4
	var startDate, createdAt, updatedAt pgtype.Timestamptz
	var nextBillingDate, endDate, cancelledAt pgtype.Timestamptz

	err := row.Scan(
		&sub.ID, &sub.SubscriptionID, &sub.CustomerID, &sub.PaymentMethodID,
		&status, &sub.Amount, &sub.CurrencyCode, &sub.Name, &sub.Description,
		&sub.IntervalLength, &intervalUnit,
		&totalCycles, &sub.CompletedCycles,
		&startDate, &nextBillingDate, &endDate, &cancelledAt,
		&sub.CancelReason, &sub.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	sub.Status = models.SubscriptionStatus(status)
	sub.IntervalUnit = models.IntervalUnit(intervalUnit)
	sub.TotalCycles = fromNullableInt4(totalCycles)
	sub.StartDate = startDate.Time.UTC()
	sub.NextBillingDate = fromNullableTimestamptz(nextBillingDate)
	sub.EndDate = fromNullableTimestamptz(endDate)
	sub.CancelledAt = fromNullableTimestamptz(cancelledAt)
	sub.CreatedAt = createdAt.Time.UTC()
	sub.UpdatedAt = updatedAt.Time.UTC()
	return &sub, nil
}
