// Package cron exposes the endpoints an external scheduler (or an operator)
// can hit to force a billing sweep or a webhook retry sweep, plus health and
// stats for monitoring. The in-process scheduler drives the same jobs; these
// endpoints exist for manual reruns and for deployments that prefer external
// cron.
package cron

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/pkg/correlation"
	"github.com/corepay/payment-gateway/pkg/timeutil"
)

// SecretHeader authenticates cron requests with a shared secret
const SecretHeader = "X-Cron-Secret"

// BillingRunner runs one billing sweep
type BillingRunner interface {
	ProcessDue(ctx context.Context) (processed, failed int, err error)
}

// RetryRunner runs one webhook retry sweep
type RetryRunner interface {
	Sweep(ctx context.Context) error
}

// BacklogCounter reports the unprocessed webhook backlog
type BacklogCounter interface {
	CountUnprocessedSince(ctx context.Context, tx ports.DBTX, since time.Time) (int64, error)
}

type billingResponse struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Duration  string `json:"duration"`
}

type statsResponse struct {
	UnprocessedLastDay int64 `json:"unprocessedEventsLastDay"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the cron endpoints
type Handler struct {
	billing    BillingRunner
	retries    RetryRunner
	events     BacklogCounter
	db         ports.DBPort
	cronSecret string
	logger     ports.Logger
}

// NewHandler creates a cron handler. An empty cronSecret disables the
// endpoints entirely rather than leaving them open.
func NewHandler(billing BillingRunner, retries RetryRunner, events BacklogCounter, db ports.DBPort, cronSecret string, logger ports.Logger) *Handler {
	return &Handler{
		billing:    billing,
		retries:    retries,
		events:     events,
		db:         db,
		cronSecret: cronSecret,
		logger:     logger,
	}
}

// ProcessBilling runs a billing sweep on demand
func (h *Handler) ProcessBilling(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	ctx, correlationID := correlation.Ensure(r.Context())
	start := time.Now()

	processed, failed, err := h.billing.ProcessDue(ctx)
	if err != nil {
		h.logger.Error("manual billing sweep failed",
			ports.String("correlation_id", correlationID),
			ports.Err(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "billing sweep failed"})
		return
	}

	h.logger.Info("manual billing sweep complete",
		ports.Int("processed", processed),
		ports.Int("failed", failed),
		ports.String("correlation_id", correlationID))
	respondJSON(w, http.StatusOK, billingResponse{
		Processed: processed,
		Failed:    failed,
		Duration:  time.Since(start).String(),
	})
}

// RetryWebhooks runs a webhook retry sweep on demand
func (h *Handler) RetryWebhooks(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	ctx, _ := correlation.Ensure(r.Context())
	if err := h.retries.Sweep(ctx); err != nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "retry sweep failed"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats reports the webhook backlog for monitoring
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	since := timeutil.Now().Add(-24 * time.Hour)
	count, err := h.events.CountUnprocessedSince(r.Context(), h.db.GetDB(), since)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "stats unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, statsResponse{UnprocessedLastDay: count})
}

// HealthCheck reports liveness
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return false
	}
	if h.cronSecret == "" {
		respondJSON(w, http.StatusForbidden, errorResponse{Error: "cron endpoints disabled"})
		return false
	}
	provided := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.cronSecret)) != 1 {
		h.logger.Warn("cron request with invalid secret", ports.String("path", r.URL.Path))
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
