// Package webhook implements the webhook pipeline: fast synchronous
// ingestion, async processing on the worker pool, and the retry sweep for
// events that failed transiently.
package webhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/internal/services/signature"
	"github.com/corepay/payment-gateway/internal/worker"
	"github.com/corepay/payment-gateway/pkg/correlation"
	"github.com/corepay/payment-gateway/pkg/observability"
	"github.com/corepay/payment-gateway/pkg/timeutil"
)

// IngestionStatus is the synchronous verdict returned to the processor's
// delivery attempt
type IngestionStatus string

const (
	StatusAccepted         IngestionStatus = "accepted"
	StatusDuplicate        IngestionStatus = "duplicate"
	StatusInvalidSignature IngestionStatus = "invalid_signature"
	StatusMalformed        IngestionStatus = "malformed"
)

// IngestRequest carries one webhook delivery. RawBody is the exact bytes
// received; the signature covers them, so they must not be re-serialized.
type IngestRequest struct {
	EventID   string
	EventType string
	RawBody   []byte
	Signature string
}

// IngestResult is what the handler turns into an HTTP response
type IngestResult struct {
	Status  IngestionStatus
	EventID string
}

// Submitter is the slice of the worker pool ingestion needs
type Submitter interface {
	Submit(task worker.Task) bool
}

// eventPayload is the subset of the processor's payload we extract related
// identifiers from; everything else is kept verbatim in the stored raw body
type eventPayload struct {
	Payload struct {
		ID             string `json:"id"`
		PaymentID      string `json:"paymentId"`
		SubscriptionID string `json:"subscriptionId"`
		CustomerID     string `json:"customerId"`
	} `json:"payload"`
}

// IngestionService accepts webhook deliveries, deduplicates them, and hands
// them to the async processor
type IngestionService struct {
	db       ports.DBPort
	events   ports.WebhookEventRepository
	verifier *signature.Verifier
	pool     Submitter
	process  func(ctx context.Context, eventID string)
	logger   ports.Logger
}

// NewIngestionService creates an ingestion service. process is invoked on
// the worker pool for each accepted event.
func NewIngestionService(
	db ports.DBPort,
	events ports.WebhookEventRepository,
	verifier *signature.Verifier,
	pool Submitter,
	process func(ctx context.Context, eventID string),
	logger ports.Logger,
) *IngestionService {
	return &IngestionService{
		db:       db,
		events:   events,
		verifier: verifier,
		pool:     pool,
		process:  process,
		logger:   logger,
	}
}

// Ingest handles one delivery. Duplicate deliveries are detected before
// signature verification so a redelivered event whose secret has since
// rotated still gets the duplicate answer the processor expects.
func (s *IngestionService) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	ctx, correlationID := correlation.Ensure(ctx)

	if strings.TrimSpace(req.EventID) == "" || strings.TrimSpace(req.EventType) == "" {
		return &IngestResult{Status: StatusMalformed}, domain.ErrMalformedPayload
	}
	observability.WebhooksReceived.WithLabelValues(req.EventType).Inc()

	existing, err := s.events.GetByEventID(ctx, s.db.GetDB(), req.EventID)
	if err == nil && existing != nil {
		observability.WebhooksDuplicate.Inc()
		s.logger.Info("duplicate webhook delivery ignored",
			ports.String("event_id", req.EventID),
			ports.String("correlation_id", correlationID))
		return &IngestResult{Status: StatusDuplicate, EventID: req.EventID}, nil
	}

	if !s.verifier.Verify(req.RawBody, req.Signature) {
		// rejected deliveries are never persisted: a forged eventId must not
		// occupy the dedup slot a legitimate delivery will need
		observability.WebhooksInvalidSignature.Inc()
		s.logger.Warn("webhook signature verification failed",
			ports.String("event_id", req.EventID),
			ports.String("event_type", req.EventType))
		return &IngestResult{Status: StatusInvalidSignature, EventID: req.EventID}, nil
	}

	event := &models.WebhookEvent{
		ID:             uuid.New().String(),
		EventID:        req.EventID,
		EventType:      req.EventType,
		EventSource:    models.EventSourceProcessor,
		Payload:        req.RawBody,
		Signature:      req.Signature,
		SignatureValid: true,
		CorrelationID:  correlationID,
		ReceivedAt:     timeutil.Now(),
	}

	s.extractRelatedIDs(event)

	if err := s.events.Create(ctx, s.db.GetDB(), event); err != nil {
		if isDuplicate(err) {
			// lost the race against a concurrent delivery of the same event
			observability.WebhooksDuplicate.Inc()
			return &IngestResult{Status: StatusDuplicate, EventID: req.EventID}, nil
		}
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to store webhook event", err)
	}

	eventID := req.EventID
	if !s.pool.Submit(func(taskCtx context.Context) {
		s.process(correlation.WithID(taskCtx, correlationID), eventID)
	}) {
		// queue full: the event is durable, the retry sweep will pick it up
		s.logger.Warn("worker queue full, deferring event to retry sweep",
			ports.String("event_id", eventID))
	}

	return &IngestResult{Status: StatusAccepted, EventID: req.EventID}, nil
}

// extractRelatedIDs pulls entity identifiers out of the payload for
// queryability; a payload that does not parse leaves them empty and the
// processor deals with it
func (s *IngestionService) extractRelatedIDs(event *models.WebhookEvent) {
	var parsed eventPayload
	if err := json.Unmarshal(event.Payload, &parsed); err != nil {
		return
	}
	event.RelatedPaymentID = parsed.Payload.PaymentID
	event.RelatedSubscriptionID = parsed.Payload.SubscriptionID
	event.RelatedCustomerID = parsed.Payload.CustomerID
	if event.RelatedPaymentID == "" && strings.HasPrefix(parsed.Payload.ID, "PAY-") {
		event.RelatedPaymentID = parsed.Payload.ID
	}
	if event.RelatedSubscriptionID == "" && strings.HasPrefix(parsed.Payload.ID, "SUB-") {
		event.RelatedSubscriptionID = parsed.Payload.ID
	}
}

func isDuplicate(err error) bool {
	return domain.IsDomainError(err, domain.ErrorCodeWebhookDuplicate)
}
