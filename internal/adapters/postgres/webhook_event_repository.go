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

// WebhookEventRepository implements ports.WebhookEventRepository
type WebhookEventRepository struct{}

// NewWebhookEventRepository creates a webhook event repository
func NewWebhookEventRepository() *WebhookEventRepository {
	return &WebhookEventRepository{}
}

const webhookEventColumns = `
	id, event_id, event_type, event_source, payload, signature,
	signature_valid, processed, processing_attempts, last_error,
	related_payment_id, related_subscription_id, related_customer_id,
	correlation_id, received_at, processed_at`

// Create inserts the event. The unique index on event_id is the dedup
// mechanism; a violation surfaces as domain.ErrDuplicateEvent.
func (r *WebhookEventRepository) Create(ctx context.Context, tx ports.DBTX, event *models.WebhookEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO webhook_events (
			id, event_id, event_type, event_source, payload, signature,
			signature_valid, processed, processing_attempts, last_error,
			related_payment_id, related_subscription_id, related_customer_id,
			correlation_id, received_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		event.ID, event.EventID, event.EventType, event.EventSource,
		event.Payload, event.Signature, event.SignatureValid,
		event.Processed, event.ProcessingAttempts, event.LastError,
		event.RelatedPaymentID, event.RelatedSubscriptionID, event.RelatedCustomerID,
		event.CorrelationID, toTimestamptz(event.ReceivedAt), toNullableTimestamptz(event.ProcessedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEvent.WithDetail("event_id", event.EventID)
		}
		return err
	}
	return nil
}

// GetByEventID returns the event with the given external id
func (r *WebhookEventRepository) GetByEventID(ctx context.Context, tx ports.DBTX, eventID string) (*models.WebhookEvent, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE event_id = $1`, eventID)
	return scanWebhookEvent(row)
}

// UpdateProcessingResult records one processing attempt's outcome
func (r *WebhookEventRepository) UpdateProcessingResult(ctx context.Context, tx ports.DBTX, event *models.WebhookEvent) error {
	_, err := tx.Exec(ctx, `
		UPDATE webhook_events
		SET processed = $2,
		    processing_attempts = $3,
		    last_error = $4,
		    processed_at = $5
		WHERE event_id = $1`,
		event.EventID, event.Processed, event.ProcessingAttempts,
		event.LastError, toNullableTimestamptz(event.ProcessedAt),
	)
	return err
}

// ListUnprocessed returns unprocessed events, oldest received first
func (r *WebhookEventRepository) ListUnprocessed(ctx context.Context, tx ports.DBTX, limit int32) ([]*models.WebhookEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE processed = false
		ORDER BY received_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountUnprocessedSince counts the unprocessed backlog received after since
func (r *WebhookEventRepository) CountUnprocessedSince(ctx context.Context, tx ports.DBTX, since time.Time) (int64, error) {
	var count int64
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM webhook_events
		WHERE processed = false AND received_at >= $1`,
		toTimestamptz(since)).Scan(&count)
	return count, err
}

func scanWebhookEvent(row pgx.Row) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	var receivedAt, processedAt pgtype.Timestamptz

	err := row.Scan(
		&event.ID, &event.EventID, &event.EventType, &event.EventSource,
		&event.Payload, &event.Signature, &event.SignatureValid,
		&event.Processed, &event.ProcessingAttempts, &event.LastError,
		&event.RelatedPaymentID, &event.RelatedSubscriptionID, &event.RelatedCustomerID,
		&event.CorrelationID, &receivedAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	event.ReceivedAt = receivedAt.Time.UTC()
	event.ProcessedAt = fromNullableTimestamptz(processedAt)
	return &event, nil
}
