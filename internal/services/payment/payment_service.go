// Package payment orchestrates card processor operations behind the
// idempotency cache and records their outcomes.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/pkg/correlation"
	"github.com/corepay/payment-gateway/pkg/observability"
	"github.com/corepay/payment-gateway/pkg/resilience"
	"github.com/corepay/payment-gateway/pkg/timeutil"
)

// PurchaseRequest is a one-step authorize and capture
type PurchaseRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	CurrencyCode    string
	Description     string
	SubscriptionID  string
	IdempotencyKey  string
}

// RefundRequest refunds a previously captured payment
type RefundRequest struct {
	PaymentID      string
	Amount         decimal.Decimal
	Reason         string
	IdempotencyKey string
}

// Result is the serializable outcome of a payment operation. Duplicate
// submissions receive this exact value replayed from the idempotency cache.
type Result struct {
	PaymentID            string          `json:"paymentId"`
	Status               string          `json:"status"`
	GatewayTransactionID string          `json:"gatewayTransactionId"`
	ResponseCode         string          `json:"responseCode"`
	ResponseMessage      string          `json:"responseMessage"`
	Approved             bool            `json:"approved"`
	Amount               decimal.Decimal `json:"amount"`
	CurrencyCode         string          `json:"currencyCode"`
}

// Service executes payment operations against the card processor
type Service struct {
	db        ports.DBPort
	payments  ports.PaymentRepository
	methods   ports.PaymentMethodRepository
	processor ports.CardProcessor
	executor  *IdempotentExecutor
	timeouts  *resilience.TimeoutConfig
	logger    ports.Logger
}

// NewService creates a payment service
func NewService(
	db ports.DBPort,
	payments ports.PaymentRepository,
	methods ports.PaymentMethodRepository,
	processor ports.CardProcessor,
	executor *IdempotentExecutor,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
) *Service {
	return &Service{
		db:        db,
		payments:  payments,
		methods:   methods,
		processor: processor,
		executor:  executor,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// Purchase charges the payment method for the full amount (auth + capture).
// Safe to call any number of times with the same idempotency key.
func (s *Service) Purchase(ctx context.Context, req *PurchaseRequest) (*Result, error) {
	return s.execute(ctx, models.ScopePurchase, req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
		return s.charge(ctx, req, models.PaymentStatusCaptured)
	})
}

// Authorize places a hold without capturing
func (s *Service) Authorize(ctx context.Context, req *PurchaseRequest) (*Result, error) {
	return s.execute(ctx, models.ScopeAuthorize, req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
		return s.charge(ctx, req, models.PaymentStatusAuthorized)
	})
}

// Refund refunds a captured payment
func (s *Service) Refund(ctx context.Context, req *RefundRequest) (*Result, error) {
	return s.execute(ctx, models.ScopeRefund, req.IdempotencyKey, func(ctx context.Context) ([]byte, error) {
		payment, err := s.payments.GetByPaymentID(ctx, s.db.GetDB(), req.PaymentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrPaymentNotFound.WithDetail("payment_id", req.PaymentID)
			}
			return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to load payment", err)
		}
		if payment.Status != models.PaymentStatusCaptured {
			return nil, domain.NewDomainError(domain.ErrorCodePaymentInvalidState, "only captured payments can be refunded").
				WithDetail("payment_status", string(payment.Status))
		}

		amount := req.Amount
		if amount.IsZero() {
			amount = payment.Amount
		}

		apiCtx, cancel := s.timeouts.ExternalAPIContext(ctx)
		defer cancel()

		verdict, err := s.processor.Refund(apiCtx, &ports.RefundRequest{
			GatewayTransactionID: payment.GatewayTransactionID,
			Amount:               amount,
			Reason:               req.Reason,
		})
		if err != nil {
			observability.PaymentsCharged.WithLabelValues("refund", "error").Inc()
			return nil, domain.NewTransient(domain.ErrorCodeProcessorError, "refund request failed", err)
		}

		if verdict.Approved {
			if _, err := s.payments.UpdateStatusIf(ctx, s.db.GetDB(), payment.PaymentID,
				[]models.PaymentStatus{models.PaymentStatusCaptured},
				models.PaymentStatusRefunded, verdict.GatewayTransactionID); err != nil {
				return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to record refund", err)
			}
		}
		observability.PaymentsCharged.WithLabelValues("refund", outcomeLabel(verdict.Approved)).Inc()

		return marshalResult(&Result{
			PaymentID:            payment.PaymentID,
			Status:               statusAfter(verdict.Approved, models.PaymentStatusRefunded, payment.Status),
			GatewayTransactionID: verdict.GatewayTransactionID,
			ResponseCode:         verdict.ResponseCode,
			ResponseMessage:      verdict.ResponseMessage,
			Approved:             verdict.Approved,
			Amount:               amount,
			CurrencyCode:         payment.CurrencyCode,
		})
	})
}

// Void cancels an authorization that has not been captured
func (s *Service) Void(ctx context.Context, paymentID, idempotencyKey string) (*Result, error) {
	return s.execute(ctx, models.ScopeVoid, idempotencyKey, func(ctx context.Context) ([]byte, error) {
		payment, err := s.payments.GetByPaymentID(ctx, s.db.GetDB(), paymentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrPaymentNotFound.WithDetail("payment_id", paymentID)
			}
			return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to load payment", err)
		}
		if payment.Status != models.PaymentStatusAuthorized {
			return nil, domain.NewDomainError(domain.ErrorCodePaymentInvalidState, "only authorized payments can be voided").
				WithDetail("payment_status", string(payment.Status))
		}

		apiCtx, cancel := s.timeouts.ExternalAPIContext(ctx)
		defer cancel()

		verdict, err := s.processor.Void(apiCtx, payment.GatewayTransactionID)
		if err != nil {
			observability.PaymentsCharged.WithLabelValues("void", "error").Inc()
			return nil, domain.NewTransient(domain.ErrorCodeProcessorError, "void request failed", err)
		}

		if verdict.Approved {
			if _, err := s.payments.UpdateStatusIf(ctx, s.db.GetDB(), payment.PaymentID,
				[]models.PaymentStatus{models.PaymentStatusAuthorized},
				models.PaymentStatusVoided, verdict.GatewayTransactionID); err != nil {
				return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to record void", err)
			}
		}
		observability.PaymentsCharged.WithLabelValues("void", outcomeLabel(verdict.Approved)).Inc()

		return marshalResult(&Result{
			PaymentID:            payment.PaymentID,
			Status:               statusAfter(verdict.Approved, models.PaymentStatusVoided, payment.Status),
			GatewayTransactionID: verdict.GatewayTransactionID,
			ResponseCode:         verdict.ResponseCode,
			ResponseMessage:      verdict.ResponseMessage,
			Approved:             verdict.Approved,
			Amount:               payment.Amount,
			CurrencyCode:         payment.CurrencyCode,
		})
	})
}

// MarkCaptured settles a payment in response to a processor capture
// notification. Returns whether the transition applied; false means the row
// was already captured or further along, which is the normal outcome for a
// redelivered webhook.
func (s *Service) MarkCaptured(ctx context.Context, paymentID, gatewayTransactionID string) (bool, error) {
	applied, err := s.payments.UpdateStatusIf(ctx, s.db.GetDB(), paymentID,
		[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusAuthorized},
		models.PaymentStatusCaptured, gatewayTransactionID)
	if err != nil {
		return false, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to mark payment captured", err)
	}
	return applied, nil
}

// MarkRefunded records a processor-initiated refund notification
func (s *Service) MarkRefunded(ctx context.Context, paymentID, gatewayTransactionID string) (bool, error) {
	applied, err := s.payments.UpdateStatusIf(ctx, s.db.GetDB(), paymentID,
		[]models.PaymentStatus{models.PaymentStatusCaptured},
		models.PaymentStatusRefunded, gatewayTransactionID)
	if err != nil {
		return false, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to mark payment refunded", err)
	}
	return applied, nil
}

func (s *Service) execute(ctx context.Context, scope models.IdempotencyScope, key string, compute func(ctx context.Context) ([]byte, error)) (*Result, error) {
	if strings.TrimSpace(key) == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeInternalError, "idempotency key is required")
	}

	ctx, correlationID := correlation.Ensure(ctx)

	raw, cached, err := s.executor.GetOrCompute(ctx, scope, key, compute)
	if err != nil {
		return nil, err
	}
	if cached {
		s.logger.Info("payment operation replayed from idempotency cache",
			ports.String("scope", string(scope)),
			ports.String("correlation_id", correlationID))
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "corrupt idempotency record", err)
	}
	return &result, nil
}

// charge is the shared purchase/authorize path. The payment row is written
// before the verdict is cached so a crash between the two still leaves a
// durable record for reconciliation.
func (s *Service) charge(ctx context.Context, req *PurchaseRequest, onApproval models.PaymentStatus) ([]byte, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.ErrSubInvalidAmount.WithDetail("amount", req.Amount.String())
	}

	method, err := s.methods.GetByID(ctx, s.db.GetDB(), req.PaymentMethodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPaymentMethodNotFound.WithDetail("payment_method_id", req.PaymentMethodID)
		}
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to load payment method", err)
	}
	if method.IsExpired(timeutil.Now()) {
		return nil, domain.ErrPaymentMethodExpired.WithDetail("expiry", method.Expiry())
	}

	currency := req.CurrencyCode
	if currency == "" {
		currency = "USD"
	}

	apiCtx, cancel := s.timeouts.ExternalAPIContext(ctx)
	defer cancel()

	verdict, err := s.processor.Charge(apiCtx, &ports.ChargeRequest{
		PaymentMethodID: req.PaymentMethodID,
		Amount:          req.Amount,
		CurrencyCode:    currency,
		Description:     req.Description,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		observability.PaymentsCharged.WithLabelValues(operationLabel(onApproval), "error").Inc()
		return nil, domain.NewTransient(domain.ErrorCodeProcessorError, "charge request failed", err)
	}

	status := onApproval
	if !verdict.Approved {
		status = models.PaymentStatusFailed
	}
	observability.PaymentsCharged.WithLabelValues(operationLabel(onApproval), outcomeLabel(verdict.Approved)).Inc()

	now := timeutil.Now()
	payment := &models.Payment{
		ID:                   uuid.New().String(),
		PaymentID:            fmt.Sprintf("PAY-%s", uuid.New().String()),
		CustomerID:           req.CustomerID,
		SubscriptionID:       req.SubscriptionID,
		Amount:               req.Amount,
		CurrencyCode:         currency,
		Status:               status,
		Gateway:              models.EventSourceProcessor,
		GatewayTransactionID: verdict.GatewayTransactionID,
		Description:          req.Description,
		Last4Digits:          method.Last4Digits,
		IdempotencyKey:       req.IdempotencyKey,
		CorrelationID:        correlation.FromContext(ctx),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.payments.Create(ctx, s.db.GetDB(), payment); err != nil {
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to record payment", err)
	}

	return marshalResult(&Result{
		PaymentID:            payment.PaymentID,
		Status:               string(status),
		GatewayTransactionID: verdict.GatewayTransactionID,
		ResponseCode:         verdict.ResponseCode,
		ResponseMessage:      verdict.ResponseMessage,
		Approved:             verdict.Approved,
		Amount:               req.Amount,
		CurrencyCode:         currency,
	})
}

func marshalResult(r *Result) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "failed to serialize payment result", err)
	}
	return raw, nil
}

func statusAfter(approved bool, next models.PaymentStatus, prev models.PaymentStatus) string {
	if approved {
		return string(next)
	}
	return string(prev)
}

func operationLabel(status models.PaymentStatus) string {
	if status == models.PaymentStatusAuthorized {
		return "authorize"
	}
	return "purchase"
}

func outcomeLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "declined"
}
