package models

import "time"

// EventSource identifies the upstream processor that delivered a webhook
const EventSourceProcessor = "CARD_PROCESSOR"

// Webhook event types consumed by the async processor
const (
	EventPaymentAuthCaptureCreated = "payment.authcapture.created"
	EventPaymentRefundCreated      = "payment.refund.created"
	EventSubscriptionCreated       = "subscription.created"
	EventSubscriptionUpdated       = "subscription.updated"
	EventSubscriptionSuspended     = "subscription.suspended"
	EventSubscriptionTerminated    = "subscription.terminated"
	EventSubscriptionExpiring      = "subscription.expiring"
	EventSubscriptionExpired       = "subscription.expired"
)

// WebhookEvent is the durable record of a received processor notification.
// Rows are never deleted; they are the audit trail of everything the
// processor told us, whether or not we managed to act on it.
type WebhookEvent struct {
	ID                    string
	EventID               string // external dedup key, unique
	EventType             string
	EventSource           string
	Payload               []byte // exact raw bytes as received
	Signature             string
	SignatureValid        bool
	Processed             bool
	ProcessingAttempts    int
	LastError             string
	RelatedPaymentID      string
	RelatedSubscriptionID string
	RelatedCustomerID     string
	CorrelationID         string
	ReceivedAt            time.Time
	ProcessedAt           *time.Time
}
