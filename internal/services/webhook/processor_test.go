package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
)

type mockMarker struct{ mock.Mock }

func (m *mockMarker) MarkCaptured(ctx context.Context, paymentID, gatewayTxnID string) (bool, error) {
	args := m.Called(ctx, paymentID, gatewayTxnID)
	return args.Bool(0), args.Error(1)
}

func (m *mockMarker) MarkRefunded(ctx context.Context, paymentID, gatewayTxnID string) (bool, error) {
	args := m.Called(ctx, paymentID, gatewayTxnID)
	return args.Bool(0), args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) ApplyRemoteStatus(ctx context.Context, subscriptionID string, remote models.SubscriptionStatus) error {
	return m.Called(ctx, subscriptionID, remote).Error(0)
}

func storedEvent(eventType string, payload string) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:             "row-1",
		EventID:        "evt-1",
		EventType:      eventType,
		EventSource:    models.EventSourceProcessor,
		Payload:        []byte(payload),
		SignatureValid: true,
	}
}

func newProcessor(events *mockEventRepo, payments *mockMarker, subs *mockReconciler) *Processor {
	return NewProcessor(fakeDB{}, events, payments, subs, noopLogger{})
}

func TestProcess_CaptureMarksEventProcessed(t *testing.T) {
	events := new(mockEventRepo)
	payments := new(mockMarker)

	event := storedEvent(models.EventPaymentAuthCaptureCreated,
		`{"payload":{"paymentId":"PAY-1","gatewayTransactionId":"txn-1"}}`)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)
	payments.On("MarkCaptured", mock.Anything, "PAY-1", "txn-1").Return(true, nil)
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return e.Processed && e.ProcessingAttempts == 1 && e.ProcessedAt != nil && e.LastError == ""
	})).Return(nil)

	newProcessor(events, payments, new(mockReconciler)).Process(context.Background(), "evt-1")

	events.AssertExpectations(t)
	payments.AssertExpectations(t)
}

func TestProcess_RedeliveredCaptureIsNoOp(t *testing.T) {
	events := new(mockEventRepo)
	payments := new(mockMarker)

	event := storedEvent(models.EventPaymentAuthCaptureCreated,
		`{"payload":{"paymentId":"PAY-1","gatewayTransactionId":"txn-1"}}`)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)
	// payment already captured: the conditional update does not apply
	payments.On("MarkCaptured", mock.Anything, "PAY-1", "txn-1").Return(false, nil)
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return e.Processed
	})).Return(nil)

	newProcessor(events, payments, new(mockReconciler)).Process(context.Background(), "evt-1")

	events.AssertExpectations(t)
}

func TestProcess_AlreadyProcessedEventSkipped(t *testing.T) {
	events := new(mockEventRepo)
	payments := new(mockMarker)

	event := storedEvent(models.EventPaymentRefundCreated, `{"payload":{"paymentId":"PAY-1"}}`)
	event.Processed = true
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)

	newProcessor(events, payments, new(mockReconciler)).Process(context.Background(), "evt-1")

	payments.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "UpdateProcessingResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_TerminatedEventCancelsSubscription(t *testing.T) {
	events := new(mockEventRepo)
	subs := new(mockReconciler)

	event := storedEvent(models.EventSubscriptionTerminated, `{"payload":{"subscriptionId":"SUB-1"}}`)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)
	subs.On("ApplyRemoteStatus", mock.Anything, "SUB-1", models.SubStatusCancelled).Return(nil)
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	newProcessor(events, new(mockMarker), subs).Process(context.Background(), "evt-1")

	subs.AssertExpectations(t)
}

func TestProcess_ExpiringEventIsInformational(t *testing.T) {
	events := new(mockEventRepo)
	subs := new(mockReconciler)

	event := storedEvent(models.EventSubscriptionExpiring, `{"payload":{"subscriptionId":"SUB-1"}}`)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return e.Processed
	})).Return(nil)

	newProcessor(events, new(mockMarker), subs).Process(context.Background(), "evt-1")

	subs.AssertNotCalled(t, "ApplyRemoteStatus", mock.Anything, mock.Anything, mock.Anything)
	events.AssertExpectations(t)
}

func TestProcess_UnknownEventTypeIsPermanent(t *testing.T) {
	events := new(mockEventRepo)

	event := storedEvent("payment.mystery.created", `{"payload":{}}`)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return !e.Processed && e.ProcessingAttempts == MaxProcessingAttempts && e.LastError != ""
	})).Return(nil)

	newProcessor(events, new(mockMarker), new(mockReconciler)).Process(context.Background(), "evt-1")

	events.AssertExpectations(t)
}

func TestProcess_MalformedPayloadIsPermanent(t *testing.T) {
	events := new(mockEventRepo)

	event := storedEvent(models.EventPaymentAuthCaptureCreated, `not json at all`)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return !e.Processed && e.ProcessingAttempts == MaxProcessingAttempts
	})).Return(nil)

	newProcessor(events, new(mockMarker), new(mockReconciler)).Process(context.Background(), "evt-1")

	events.AssertExpectations(t)
}

func TestProcess_TransientFailureIncrementsAttemptsOnly(t *testing.T) {
	events := new(mockEventRepo)
	payments := new(mockMarker)

	event := storedEvent(models.EventPaymentRefundCreated, `{"payload":{"paymentId":"PAY-1"}}`)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)
	payments.On("MarkRefunded", mock.Anything, "PAY-1", "").
		Return(false, domain.NewTransient(domain.ErrorCodeDatabaseError, "db down", errors.New("conn refused")))
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.MatchedBy(func(e *models.WebhookEvent) bool {
		return !e.Processed && e.ProcessingAttempts == 1 && e.LastError != ""
	})).Return(nil)

	newProcessor(events, payments, new(mockReconciler)).Process(context.Background(), "evt-1")

	events.AssertExpectations(t)
}

func TestProcess_ExhaustedEventNotRetried(t *testing.T) {
	events := new(mockEventRepo)
	payments := new(mockMarker)

	event := storedEvent(models.EventPaymentRefundCreated, `{"payload":{"paymentId":"PAY-1"}}`)
	event.ProcessingAttempts = MaxProcessingAttempts
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(event, nil)

	newProcessor(events, payments, new(mockReconciler)).Process(context.Background(), "evt-1")

	payments.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "UpdateProcessingResult", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_RetriesOnlyEligibleEvents(t *testing.T) {
	events := new(mockEventRepo)
	payments := new(mockMarker)

	eligible := storedEvent(models.EventPaymentAuthCaptureCreated,
		`{"payload":{"paymentId":"PAY-1","gatewayTransactionId":"txn-1"}}`)
	eligible.ProcessingAttempts = 1

	exhausted := storedEvent(models.EventPaymentAuthCaptureCreated, `{"payload":{"paymentId":"PAY-2"}}`)
	exhausted.EventID = "evt-2"
	exhausted.ProcessingAttempts = MaxProcessingAttempts

	events.On("ListUnprocessed", mock.Anything, mock.Anything, int32(100)).
		Return([]*models.WebhookEvent{eligible, exhausted}, nil)
	events.On("GetByEventID", mock.Anything, mock.Anything, "evt-1").Return(eligible, nil)
	payments.On("MarkCaptured", mock.Anything, "PAY-1", "txn-1").Return(true, nil)
	events.On("UpdateProcessingResult", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	processor := newProcessor(events, payments, new(mockReconciler))
	sweeper := NewRetrySweeper(fakeDB{}, events, processor, 100, noopLogger{})

	assert.NoError(t, sweeper.Sweep(context.Background()))
	events.AssertNotCalled(t, "GetByEventID", mock.Anything, mock.Anything, "evt-2")
	payments.AssertExpectations(t)
}
