// Package postgres implements the repository ports on pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database wraps a pgx connection pool and provides transaction management
type Database struct {
	pool *pgxpool.Pool
}

// NewDatabase creates a Database from an established pool
func NewDatabase(pool *pgxpool.Pool) *Database {
	return &Database{pool: pool}
}

// Connect opens a pool against the given DSN and verifies connectivity
func Connect(ctx context.Context, dsn string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Database{pool: pool}, nil
}

// GetDB returns the underlying connection pool
func (d *Database) GetDB() *pgxpool.Pool {
	return d.pool
}

// Close closes the connection pool
func (d *Database) Close() {
	d.pool.Close()
}

// WithTransaction executes fn within a transaction. The transaction commits
// when fn returns nil and rolls back on error or panic.
func (d *Database) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
