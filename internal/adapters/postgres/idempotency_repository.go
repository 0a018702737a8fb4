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

// IdempotencyRepository implements ports.IdempotencyRepository
type IdempotencyRepository struct{}

// NewIdempotencyRepository creates an idempotency repository
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{}
}

// Get returns the record for (scope, key), or domain.ErrNotFound
func (r *IdempotencyRepository) Get(ctx context.Context, tx ports.DBTX, scope models.IdempotencyScope, key string) (*models.IdempotencyRecord, error) {
	row := tx.QueryRow(ctx, `
		SELECT scope, key, result, created_at, expires_at
		FROM idempotency_records
		WHERE scope = $1 AND key = $2`, string(scope), key)
	return scanIdempotencyRecord(row)
}

// PutIfAbsent inserts the record unless one already exists, then returns the
// surviving row. ON CONFLICT DO NOTHING plus the re-read makes concurrent
// writers across processes converge on the first writer's result.
func (r *IdempotencyRepository) PutIfAbsent(ctx context.Context, tx ports.DBTX, record *models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO idempotency_records (scope, key, result, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, key) DO NOTHING`,
		string(record.Scope), record.Key, record.Result,
		toTimestamptz(record.CreatedAt), toNullableTimestamptz(record.ExpiresAt),
	)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, tx, record.Scope, record.Key)
}

func scanIdempotencyRecord(row pgx.Row) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	var scope string
	var createdAt, expiresAt pgtype.Timestamptz

	err := row.Scan(&scope, &record.Key, &record.Result, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	record.Scope = models.IdempotencyScope(scope)
	record.CreatedAt = createdAt.Time.UTC()
	record.ExpiresAt = fromNullableTimestamptz(expiresAt)
	return &record, nil
}
