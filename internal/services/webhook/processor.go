package webhook

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/pkg/observability"
	"github.com/corepay/payment-gateway/pkg/timeutil"
)

// MaxProcessingAttempts bounds how often a failing event is retried before
// it is abandoned for manual review
const MaxProcessingAttempts = 3

const lockStripes = 64

// PaymentMarker applies payment-state effects from processor notifications
type PaymentMarker interface {
	MarkCaptured(ctx context.Context, paymentID, gatewayTransactionID string) (bool, error)
	MarkRefunded(ctx context.Context, paymentID, gatewayTransactionID string) (bool, error)
}

// SubscriptionReconciler applies subscription-state effects
type SubscriptionReconciler interface {
	ApplyRemoteStatus(ctx context.Context, subscriptionID string, remote models.SubscriptionStatus) error
}

// effectPayload is the parsed slice of the payload the effects need
type effectPayload struct {
	Payload struct {
		ID                   string `json:"id"`
		PaymentID            string `json:"paymentId"`
		SubscriptionID       string `json:"subscriptionId"`
		GatewayTransactionID string `json:"gatewayTransactionId"`
	} `json:"payload"`
}

// Processor applies the state effects of stored webhook events. Process is
// idempotent per event: redelivery, the retry sweep, and concurrent workers
// can all hit the same event without double-applying anything.
type Processor struct {
	db            ports.DBPort
	events        ports.WebhookEventRepository
	payments      PaymentMarker
	subscriptions SubscriptionReconciler
	logger        ports.Logger

	// striped per-event locks: two workers holding the same event serialize
	// here instead of racing the attempts counter
	locks [lockStripes]sync.Mutex
}

// NewProcessor creates a webhook processor
func NewProcessor(db ports.DBPort, events ports.WebhookEventRepository, payments PaymentMarker, subscriptions SubscriptionReconciler, logger ports.Logger) *Processor {
	return &Processor{
		db:            db,
		events:        events,
		payments:      payments,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// Process applies one event's effect and records the outcome on the event
// row. Safe to call for already-processed or unknown event ids.
func (p *Processor) Process(ctx context.Context, eventID string) {
	lock := &p.locks[stripe(eventID)]
	lock.Lock()
	defer lock.Unlock()

	event, err := p.events.GetByEventID(ctx, p.db.GetDB(), eventID)
	if err != nil || event == nil {
		p.logger.Error("webhook event not found for processing",
			ports.String("event_id", eventID),
			ports.Err(err))
		return
	}
	if event.Processed {
		return
	}
	if event.ProcessingAttempts >= MaxProcessingAttempts {
		return
	}

	start := time.Now()
	event.ProcessingAttempts++

	effectErr := p.apply(ctx, event)
	observability.WebhookProcessingDuration.WithLabelValues(event.EventType).Observe(time.Since(start).Seconds())

	if effectErr == nil {
		event.Processed = true
		event.LastError = ""
		now := timeutil.Now()
		event.ProcessedAt = &now
		observability.WebhooksProcessed.WithLabelValues(event.EventType, "success").Inc()
	} else {
		event.LastError = effectErr.Error()
		if !domain.IsTransient(effectErr) {
			// a permanent failure will not improve with retries
			event.ProcessingAttempts = MaxProcessingAttempts
			observability.WebhooksProcessed.WithLabelValues(event.EventType, "permanent_failure").Inc()
		} else {
			observability.WebhooksProcessed.WithLabelValues(event.EventType, "transient_failure").Inc()
		}
		if event.ProcessingAttempts >= MaxProcessingAttempts {
			observability.WebhookRetriesExhausted.Inc()
			p.logger.Error("webhook event abandoned after max attempts",
				ports.String("event_id", eventID),
				ports.String("event_type", event.EventType),
				ports.String("last_error", event.LastError))
		}
	}

	if err := p.events.UpdateProcessingResult(ctx, p.db.GetDB(), event); err != nil {
		p.logger.Error("failed to record webhook processing result",
			ports.String("event_id", eventID),
			ports.Err(err))
	}
}

func (p *Processor) apply(ctx context.Context, event *models.WebhookEvent) error {
	var parsed effectPayload
	if err := json.Unmarshal(event.Payload, &parsed); err != nil {
		return domain.WrapError(domain.ErrorCodeWebhookMalformedPayload, "payload is not valid JSON", err)
	}

	switch event.EventType {
	case models.EventPaymentAuthCaptureCreated:
		return p.applyCapture(ctx, event, &parsed)
	case models.EventPaymentRefundCreated:
		return p.applyRefund(ctx, event, &parsed)
	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated:
		return p.reconcile(ctx, event, &parsed, models.SubStatusActive)
	case models.EventSubscriptionSuspended:
		return p.reconcile(ctx, event, &parsed, models.SubStatusSuspended)
	case models.EventSubscriptionTerminated:
		return p.reconcile(ctx, event, &parsed, models.SubStatusCancelled)
	case models.EventSubscriptionExpired:
		return p.reconcile(ctx, event, &parsed, models.SubStatusExpired)
	case models.EventSubscriptionExpiring:
		// informational: the subscription is approaching its final cycle,
		// nothing to change locally
		p.logger.Info("subscription expiring soon",
			ports.String("subscription_id", relatedSubscription(event, &parsed)))
		return nil
	default:
		return domain.ErrUnknownEventType.WithDetail("event_type", event.EventType)
	}
}

func (p *Processor) applyCapture(ctx context.Context, event *models.WebhookEvent, parsed *effectPayload) error {
	paymentID := relatedPayment(event, parsed)
	if paymentID == "" {
		return domain.ErrMalformedPayload.WithDetail("missing", "paymentId")
	}
	applied, err := p.payments.MarkCaptured(ctx, paymentID, parsed.Payload.GatewayTransactionID)
	if err != nil {
		return err
	}
	if !applied {
		p.logger.Debug("capture notification was a no-op",
			ports.String("payment_id", paymentID))
	}
	return nil
}

func (p *Processor) applyRefund(ctx context.Context, event *models.WebhookEvent, parsed *effectPayload) error {
	paymentID := relatedPayment(event, parsed)
	if paymentID == "" {
		return domain.ErrMalformedPayload.WithDetail("missing", "paymentId")
	}
	applied, err := p.payments.MarkRefunded(ctx, paymentID, parsed.Payload.GatewayTransactionID)
	if err != nil {
		return err
	}
	if !applied {
		p.logger.Debug("refund notification was a no-op",
			ports.String("payment_id", paymentID))
	}
	return nil
}

func (p *Processor) reconcile(ctx context.Context, event *models.WebhookEvent, parsed *effectPayload, status models.SubscriptionStatus) error {
	subscriptionID := relatedSubscription(event, parsed)
	if subscriptionID == "" {
		return domain.ErrMalformedPayload.WithDetail("missing", "subscriptionId")
	}
	// a not-found here is already permanent: retrying will not make the
	// subscription row appear
	return p.subscriptions.ApplyRemoteStatus(ctx, subscriptionID, status)
}

func relatedPayment(event *models.WebhookEvent, parsed *effectPayload) string {
	if parsed.Payload.PaymentID != "" {
		return parsed.Payload.PaymentID
	}
	return event.RelatedPaymentID
}

func relatedSubscription(event *models.WebhookEvent, parsed *effectPayload) string {
	if parsed.Payload.SubscriptionID != "" {
		return parsed.Payload.SubscriptionID
	}
	return event.RelatedSubscriptionID
}

func stripe(eventID string) int {
	h := fnv.New32a()
	h.Write([]byte(eventID))
	return int(h.Sum32() % lockStripes)
}
