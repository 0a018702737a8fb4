// Package webhook exposes the inbound webhook endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/corepay/payment-gateway/internal/domain/ports"
	svc "github.com/corepay/payment-gateway/internal/services/webhook"
	"github.com/corepay/payment-gateway/pkg/correlation"
)

// SignatureHeader carries the HMAC signature of the raw request body
const SignatureHeader = "X-Webhook-Signature"

const maxBodyBytes = 1 << 20 // 1 MiB

// Ingestor is the slice of the ingestion service the handler needs
type Ingestor interface {
	Ingest(ctx context.Context, req *svc.IngestRequest) (*svc.IngestResult, error)
}

// envelope is the processor's delivery format. The payload field stays raw:
// the stored event keeps the exact bytes the signature was computed over.
type envelope struct {
	NotificationID string          `json:"notificationId"`
	EventType      string          `json:"eventType"`
	EventDate      string          `json:"eventDate"`
	Payload        json.RawMessage `json:"payload"`
	Signature      string          `json:"signature"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	EventID string `json:"eventId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves POST /webhooks/payment
type Handler struct {
	ingestor Ingestor
	logger   ports.Logger
}

// NewHandler creates a webhook handler
func NewHandler(ingestor Ingestor, logger ports.Logger) *Handler {
	return &Handler{ingestor: ingestor, logger: logger}
}

// Receive accepts one webhook delivery. The endpoint answers fast: effects
// run async, only dedup and signature verification happen inline.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	ctx := r.Context()
	if id := r.Header.Get(correlation.HeaderName); id != "" {
		ctx = correlation.WithID(ctx, id)
	}
	ctx, correlationID := correlation.Ensure(ctx)
	w.Header().Set(correlation.HeaderName, correlationID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable request body"})
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed notification"})
		return
	}

	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		sig = env.Signature
	}

	result, err := h.ingestor.Ingest(ctx, &svc.IngestRequest{
		EventID:   env.NotificationID,
		EventType: env.EventType,
		RawBody:   body,
		Signature: sig,
	})
	if err != nil && result == nil {
		h.logger.Error("webhook ingestion failed",
			ports.String("correlation_id", correlationID),
			ports.Err(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	switch result.Status {
	case svc.StatusAccepted, svc.StatusDuplicate:
		respondJSON(w, http.StatusOK, webhookResponse{Status: string(result.Status), EventID: result.EventID})
	case svc.StatusInvalidSignature:
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid signature"})
	default:
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed notification"})
	}
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
