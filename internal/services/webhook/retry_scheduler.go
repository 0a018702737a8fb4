package webhook

import (
	"context"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/ports"
)

// RetrySweeper re-drives unprocessed events whose earlier attempts failed
// transiently, or that never reached a worker because the queue was full or
// the process died. It runs on the scheduler; Process itself enforces the
// attempt ceiling, the sweep only filters to avoid useless work.
type RetrySweeper struct {
	db        ports.DBPort
	events    ports.WebhookEventRepository
	processor *Processor
	logger    ports.Logger
	batch     int32
}

// NewRetrySweeper creates a sweep bounded to batch events per run
func NewRetrySweeper(db ports.DBPort, events ports.WebhookEventRepository, processor *Processor, batch int32, logger ports.Logger) *RetrySweeper {
	if batch < 1 {
		batch = 100
	}
	return &RetrySweeper{
		db:        db,
		events:    events,
		processor: processor,
		logger:    logger,
		batch:     batch,
	}
}

// Sweep runs one pass. Events are processed inline, oldest first, so a
// backlog drains in arrival order.
func (r *RetrySweeper) Sweep(ctx context.Context) error {
	pending, err := r.events.ListUnprocessed(ctx, r.db.GetDB(), r.batch)
	if err != nil {
		return domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to list unprocessed events", err)
	}
	if len(pending) == 0 {
		return nil
	}

	retried := 0
	for _, event := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if event.ProcessingAttempts >= MaxProcessingAttempts {
			continue
		}
		r.processor.Process(ctx, event.EventID)
		retried++
	}

	r.logger.Info("webhook retry sweep complete",
		ports.Int("pending", len(pending)),
		ports.Int("retried", retried))
	return nil
}
