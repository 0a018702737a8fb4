package cron

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/corepay/payment-gateway/internal/domain/ports"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...ports.Field)  {}
func (noopLogger) Error(string, ...ports.Field) {}
func (noopLogger) Warn(string, ...ports.Field)  {}
func (noopLogger) Debug(string, ...ports.Field) {}

type fakeDB struct{}

func (fakeDB) GetDB() *pgxpool.Pool { return nil }
func (fakeDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type stubBilling struct {
	processed, failed int
	err               error
	calls             int
}

func (s *stubBilling) ProcessDue(ctx context.Context) (int, int, error) {
	s.calls++
	return s.processed, s.failed, s.err
}

type stubRetry struct{ calls int }

func (s *stubRetry) Sweep(ctx context.Context) error {
	s.calls++
	return nil
}

type stubCounter struct{ count int64 }

func (s *stubCounter) CountUnprocessedSince(ctx context.Context, tx ports.DBTX, since time.Time) (int64, error) {
	return s.count, nil
}

const testSecret = "cron-secret"

func newTestHandler(billing *stubBilling) *Handler {
	return NewHandler(billing, &stubRetry{}, &stubCounter{}, fakeDB{}, testSecret, noopLogger{})
}

func TestProcessBilling_ValidSecret(t *testing.T) {
	billing := &stubBilling{processed: 5, failed: 1}
	h := newTestHandler(billing)

	req := httptest.NewRequest(http.MethodPost, "/cron/process-billing", nil)
	req.Header.Set(SecretHeader, testSecret)
	rec := httptest.NewRecorder()
	h.ProcessBilling(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, billing.calls)
	assert.Contains(t, rec.Body.String(), `"processed":5`)
	assert.Contains(t, rec.Body.String(), `"failed":1`)
}

func TestProcessBilling_WrongSecret(t *testing.T) {
	billing := &stubBilling{}
	h := newTestHandler(billing)

	req := httptest.NewRequest(http.MethodPost, "/cron/process-billing", nil)
	req.Header.Set(SecretHeader, "wrong")
	rec := httptest.NewRecorder()
	h.ProcessBilling(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, billing.calls)
}

func TestProcessBilling_MissingSecretConfigDisablesEndpoint(t *testing.T) {
	h := NewHandler(&stubBilling{}, &stubRetry{}, &stubCounter{}, fakeDB{}, "", noopLogger{})

	req := httptest.NewRequest(http.MethodPost, "/cron/process-billing", nil)
	rec := httptest.NewRecorder()
	h.ProcessBilling(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProcessBilling_GetNotAllowed(t *testing.T) {
	h := newTestHandler(&stubBilling{})

	req := httptest.NewRequest(http.MethodGet, "/cron/process-billing", nil)
	req.Header.Set(SecretHeader, testSecret)
	rec := httptest.NewRecorder()
	h.ProcessBilling(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRetryWebhooks_RunsSweep(t *testing.T) {
	retry := &stubRetry{}
	h := NewHandler(&stubBilling{}, retry, &stubCounter{}, fakeDB{}, testSecret, noopLogger{})

	req := httptest.NewRequest(http.MethodPost, "/cron/retry-webhooks", nil)
	req.Header.Set(SecretHeader, testSecret)
	rec := httptest.NewRecorder()
	h.RetryWebhooks(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, retry.calls)
}

func TestHealthCheck_NoAuthRequired(t *testing.T) {
	h := newTestHandler(&stubBilling{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestStats_ReportsBacklog(t *testing.T) {
	h := NewHandler(&stubBilling{}, &stubRetry{}, &stubCounter{count: 7}, fakeDB{}, testSecret, noopLogger{})

	req := httptest.NewRequest(http.MethodPost, "/cron/stats", nil)
	req.Header.Set(SecretHeader, testSecret)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unprocessedEventsLastDay":7`)
}
