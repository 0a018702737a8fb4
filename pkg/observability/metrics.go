// Package observability defines the Prometheus metrics for the gateway and
// serves them alongside the health endpoint.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebhooksReceived counts inbound webhook deliveries by event type
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Inbound webhook deliveries",
	}, []string{"event_type"})

	// WebhooksDuplicate counts deliveries rejected as already seen
	WebhooksDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhooks_duplicate_total",
		Help: "Webhook deliveries rejected as duplicates",
	})

	// WebhooksInvalidSignature counts deliveries failing HMAC verification
	WebhooksInvalidSignature = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhooks_invalid_signature_total",
		Help: "Webhook deliveries with an invalid signature",
	})

	// WebhooksProcessed counts processing outcomes by event type and result
	WebhooksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_processed_total",
		Help: "Webhook processing attempts by outcome",
	}, []string{"event_type", "outcome"})

	// WebhookProcessingDuration tracks per-event processing latency
	WebhookProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Time spent processing a single webhook event",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})

	// WebhookRetriesExhausted counts events abandoned after max attempts
	WebhookRetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_retries_exhausted_total",
		Help: "Webhook events that hit the processing attempt limit",
	})

	// BillingSubscriptionsProcessed counts billing sweep outcomes
	BillingSubscriptionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_subscriptions_processed_total",
		Help: "Subscriptions handled by the billing sweep by outcome",
	}, []string{"outcome"})

	// BillingSweepDuration tracks full billing sweep latency
	BillingSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_sweep_duration_seconds",
		Help:    "Duration of a full billing sweep",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// PaymentsCharged counts charge attempts by operation and outcome
	PaymentsCharged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_charged_total",
		Help: "Card processor operations by outcome",
	}, []string{"operation", "outcome"})

	// IdempotencyHits counts payment operations served from a cached result
	IdempotencyHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idempotency_hits_total",
		Help: "Payment operations answered from the idempotency cache",
	}, []string{"scope", "layer"})

	// WorkerQueueDepth tracks the async processing queue backlog
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_queue_depth",
		Help: "Tasks waiting in the worker pool queue",
	})
)

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
