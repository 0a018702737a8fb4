// Package subscription implements the recurring billing state machine: the
// subscription lifecycle, the daily billing sweep, and reconciliation
// against processor notifications.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/internal/services/payment"
	"github.com/corepay/payment-gateway/pkg/correlation"
	"github.com/corepay/payment-gateway/pkg/observability"
	"github.com/corepay/payment-gateway/pkg/timeutil"
)

// Suspension reasons recorded on the subscription when billing cannot proceed
const (
	ReasonPaymentFailed        = "payment processing failed"
	ReasonPaymentMethodExpired = "payment method expired"
)

// Charger is the slice of the payment service the engine needs
type Charger interface {
	Purchase(ctx context.Context, req *payment.PurchaseRequest) (*payment.Result, error)
}

// CreateRequest describes a new subscription
type CreateRequest struct {
	CustomerID     string
	Name           string
	Description    string
	Amount         decimal.Decimal
	CurrencyCode   string
	IntervalLength int
	IntervalUnit   models.IntervalUnit
	TotalCycles    *int
	StartDate      time.Time

	// card details arrive tokenized; we keep only what survives tokenization
	Last4Digits     string
	ExpirationMonth int
	ExpirationYear  int
	CardholderName  string
}

// Engine drives the subscription state machine
type Engine struct {
	db      ports.DBPort
	subs    ports.SubscriptionRepository
	methods ports.PaymentMethodRepository
	charger Charger
	logger  ports.Logger

	batchLimit int32
	now        func() time.Time
}

// NewEngine creates a billing engine. batchLimit bounds how many due
// subscriptions a single sweep picks up.
func NewEngine(db ports.DBPort, subs ports.SubscriptionRepository, methods ports.PaymentMethodRepository, charger Charger, batchLimit int32, logger ports.Logger) *Engine {
	if batchLimit < 1 {
		batchLimit = 100
	}
	return &Engine{
		db:         db,
		subs:       subs,
		methods:    methods,
		charger:    charger,
		logger:     logger,
		batchLimit: batchLimit,
		now:        timeutil.Now,
	}
}

// Create provisions a subscription and takes the first cycle's payment
// immediately. A failed initial charge still persists the subscription, in
// failed status, so support can see what the customer attempted.
func (e *Engine) Create(ctx context.Context, req *CreateRequest) (*models.Subscription, error) {
	ctx, correlationID := correlation.Ensure(ctx)

	if err := e.validateCreate(req); err != nil {
		return nil, err
	}

	now := e.now()
	method, err := e.resolvePaymentMethod(ctx, req, now)
	if err != nil {
		return nil, err
	}

	start := req.StartDate
	if start.IsZero() {
		start = now
	}
	currency := req.CurrencyCode
	if currency == "" {
		currency = "USD"
	}

	sub := &models.Subscription{
		ID:              uuid.New().String(),
		SubscriptionID:  fmt.Sprintf("SUB-%s", uuid.New().String()),
		CustomerID:      req.CustomerID,
		PaymentMethodID: method.ID,
		Status:          models.SubStatusActive,
		Amount:          req.Amount,
		CurrencyCode:    currency,
		Name:            req.Name,
		Description:     req.Description,
		IntervalLength:  req.IntervalLength,
		IntervalUnit:    req.IntervalUnit,
		TotalCycles:     req.TotalCycles,
		StartDate:       start,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result, chargeErr := e.charger.Purchase(ctx, &payment.PurchaseRequest{
		CustomerID:      req.CustomerID,
		PaymentMethodID: method.ID,
		Amount:          req.Amount,
		CurrencyCode:    currency,
		Description:     fmt.Sprintf("%s (initial cycle)", req.Name),
		SubscriptionID:  sub.SubscriptionID,
		IdempotencyKey:  fmt.Sprintf("sub-create-%s", sub.SubscriptionID),
	})

	switch {
	case chargeErr != nil:
		sub.Status = models.SubStatusFailed
	case !result.Approved:
		sub.Status = models.SubStatusFailed
	default:
		sub.CompletedCycles = 1
		next := e.advance(sub, start)
		sub.NextBillingDate = &next
		if sub.CyclesExhausted() {
			sub.Status = models.SubStatusExpired
			sub.NextBillingDate = nil
		}
	}

	if err := e.subs.Create(ctx, e.db.GetDB(), sub); err != nil {
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to persist subscription", err)
	}

	if sub.Status == models.SubStatusFailed {
		e.logger.Warn("subscription created in failed state, initial charge unsuccessful",
			ports.String("subscription_id", sub.SubscriptionID),
			ports.String("correlation_id", correlationID))
		if chargeErr != nil {
			return sub, chargeErr
		}
		return sub, domain.NewDomainError(domain.ErrorCodePaymentDeclined, result.ResponseMessage).
			WithDetail("subscription_id", sub.SubscriptionID)
	}

	e.logger.Info("subscription created",
		ports.String("subscription_id", sub.SubscriptionID),
		ports.String("customer_id", sub.CustomerID),
		ports.String("correlation_id", correlationID))
	return sub, nil
}

// Get returns a subscription by its public identifier
func (e *Engine) Get(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	return e.load(ctx, subscriptionID)
}

// ListByCustomer returns all subscriptions for a customer
func (e *Engine) ListByCustomer(ctx context.Context, customerID string) ([]*models.Subscription, error) {
	subs, err := e.subs.ListByCustomer(ctx, e.db.GetDB(), customerID)
	if err != nil {
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to list subscriptions", err)
	}
	return subs, nil
}

// Cancel permanently stops a subscription. Cancellation is terminal and
// idempotent-hostile on purpose: cancelling twice is an error the caller
// should see.
func (e *Engine) Cancel(ctx context.Context, subscriptionID, reason string) (*models.Subscription, error) {
	sub, err := e.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	switch sub.Status {
	case models.SubStatusCancelled:
		return nil, domain.NewDomainError(domain.ErrorCodeSubInvalidState, "subscription is already cancelled").
			WithDetail("subscription_id", subscriptionID)
	case models.SubStatusExpired:
		return nil, domain.NewDomainError(domain.ErrorCodeSubInvalidState, "expired subscriptions cannot be cancelled").
			WithDetail("subscription_id", subscriptionID)
	}

	now := e.now()
	sub.Status = models.SubStatusCancelled
	sub.CancelledAt = &now
	sub.CancelReason = reason
	sub.NextBillingDate = nil
	sub.EndDate = &now

	if err := e.save(ctx, sub); err != nil {
		return nil, err
	}
	e.logger.Info("subscription cancelled",
		ports.String("subscription_id", subscriptionID),
		ports.String("reason", reason))
	return sub, nil
}

// Suspend pauses billing without losing the schedule
func (e *Engine) Suspend(ctx context.Context, subscriptionID, reason string) (*models.Subscription, error) {
	sub, err := e.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubStatusActive {
		return nil, domain.NewDomainError(domain.ErrorCodeSubInvalidState, "only active subscriptions can be suspended").
			WithDetail("subscription_id", subscriptionID).
			WithDetail("status", string(sub.Status))
	}

	sub.Status = models.SubStatusSuspended
	sub.CancelReason = reason
	if err := e.save(ctx, sub); err != nil {
		return nil, err
	}
	e.logger.Info("subscription suspended",
		ports.String("subscription_id", subscriptionID),
		ports.String("reason", reason))
	return sub, nil
}

// Reactivate resumes a suspended subscription. The payment method must still
// be valid, and a billing date that went stale during the suspension is
// recomputed forward from now so the customer is not billed for the gap.
func (e *Engine) Reactivate(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	sub, err := e.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubStatusSuspended {
		return nil, domain.NewDomainError(domain.ErrorCodeSubInvalidState, "only suspended subscriptions can be reactivated").
			WithDetail("subscription_id", subscriptionID).
			WithDetail("status", string(sub.Status))
	}

	now := e.now()
	method, err := e.methods.GetByID(ctx, e.db.GetDB(), sub.PaymentMethodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPaymentMethodNotFound.WithDetail("payment_method_id", sub.PaymentMethodID)
		}
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to load payment method", err)
	}
	if method.IsExpired(now) {
		return nil, domain.ErrPaymentMethodExpired.WithDetail("expiry", method.Expiry())
	}

	sub.Status = models.SubStatusActive
	sub.CancelReason = ""
	if sub.NextBillingDate == nil || sub.NextBillingDate.Before(now) {
		next := e.advance(sub, now)
		sub.NextBillingDate = &next
	}

	if err := e.save(ctx, sub); err != nil {
		return nil, err
	}
	e.logger.Info("subscription reactivated", ports.String("subscription_id", subscriptionID))
	return sub, nil
}

// UpdateAmount changes the recurring amount for future cycles
func (e *Engine) UpdateAmount(ctx context.Context, subscriptionID string, amount decimal.Decimal) (*models.Subscription, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrSubInvalidAmount.WithDetail("amount", amount.String())
	}
	sub, err := e.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubStatusActive {
		return nil, domain.NewDomainError(domain.ErrorCodeSubInvalidState, "amount can only change on an active subscription").
			WithDetail("status", string(sub.Status))
	}

	sub.Amount = amount
	if err := e.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdateNextBillingDate moves the next charge to a future date
func (e *Engine) UpdateNextBillingDate(ctx context.Context, subscriptionID string, next time.Time) (*models.Subscription, error) {
	if !next.After(e.now()) {
		return nil, domain.ErrSubInvalidDate.WithDetail("next_billing_date", next.Format(time.RFC3339))
	}
	sub, err := e.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubStatusActive {
		return nil, domain.NewDomainError(domain.ErrorCodeSubInvalidState, "billing date can only change on an active subscription").
			WithDetail("status", string(sub.Status))
	}

	nextUTC := next.UTC()
	sub.NextBillingDate = &nextUTC
	if err := e.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ProcessDue runs one billing sweep: every active subscription whose billing
// date has passed is charged for one cycle. processed counts only cycles that
// were actually charged; a subscription suspended on a decline or an expired
// card counts as failed. Individual failures never abort the sweep.
func (e *Engine) ProcessDue(ctx context.Context) (processed, failed int, err error) {
	start := time.Now()
	defer func() {
		observability.BillingSweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := e.now()
	due, err := e.subs.ListDueForBilling(ctx, e.db.GetDB(), now, e.batchLimit)
	if err != nil {
		return 0, 0, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to list due subscriptions", err)
	}

	for _, sub := range due {
		select {
		case <-ctx.Done():
			return processed, failed, ctx.Err()
		default:
		}

		outcome, err := e.billOne(ctx, sub, now)
		switch {
		case err != nil:
			failed++
			e.logger.Error("billing cycle failed",
				ports.String("subscription_id", sub.SubscriptionID),
				ports.Err(err))
		case outcome == billCharged:
			processed++
		case outcome == billSuspended:
			failed++
		}
	}
	return processed, failed, nil
}

// ApplyRemoteStatus reconciles the local subscription against a processor
// notification. The processor wins, with one exception: locally terminal
// subscriptions never transition out, because cancellation and expiry are
// decisions we already made and reported.
func (e *Engine) ApplyRemoteStatus(ctx context.Context, subscriptionID string, remote models.SubscriptionStatus) error {
	sub, err := e.load(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if sub.Status == remote {
		return nil
	}
	if sub.Status.IsTerminal() {
		e.logger.Info("ignoring remote status for terminal subscription",
			ports.String("subscription_id", subscriptionID),
			ports.String("local_status", string(sub.Status)),
			ports.String("remote_status", string(remote)))
		return nil
	}

	sub.Status = remote
	now := e.now()
	switch remote {
	case models.SubStatusCancelled:
		sub.CancelledAt = &now
		sub.CancelReason = "terminated by processor"
		sub.NextBillingDate = nil
		sub.EndDate = &now
	case models.SubStatusExpired:
		sub.NextBillingDate = nil
		sub.EndDate = &now
	}

	if err := e.save(ctx, sub); err != nil {
		return err
	}
	e.logger.Info("subscription status reconciled from processor",
		ports.String("subscription_id", subscriptionID),
		ports.String("status", string(remote)))
	return nil
}

// billOutcome reports what a single billing attempt did to a subscription
type billOutcome int

const (
	billSkipped billOutcome = iota
	billCharged
	billSuspended
)

// billOne charges one cycle. The idempotency key is derived from the
// scheduled date, so a sweep that crashes and reruns cannot double-charge
// the same cycle.
func (e *Engine) billOne(ctx context.Context, sub *models.Subscription, now time.Time) (billOutcome, error) {
	ctx, _ = correlation.Ensure(ctx)

	// reload: the snapshot from the due query may be stale
	sub, err := e.load(ctx, sub.SubscriptionID)
	if err != nil {
		return billSkipped, err
	}
	if !sub.IsActive() || sub.NextBillingDate == nil || sub.NextBillingDate.After(now) {
		observability.BillingSubscriptionsProcessed.WithLabelValues("skipped").Inc()
		return billSkipped, nil
	}
	scheduled := *sub.NextBillingDate

	method, err := e.methods.GetByID(ctx, e.db.GetDB(), sub.PaymentMethodID)
	if err != nil {
		return billSkipped, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to load payment method", err)
	}
	if method.IsExpired(now) {
		observability.BillingSubscriptionsProcessed.WithLabelValues("suspended_expired_card").Inc()
		if err := e.suspendForBilling(ctx, sub, ReasonPaymentMethodExpired); err != nil {
			return billSkipped, err
		}
		return billSuspended, nil
	}

	result, err := e.charger.Purchase(ctx, &payment.PurchaseRequest{
		CustomerID:      sub.CustomerID,
		PaymentMethodID: sub.PaymentMethodID,
		Amount:          sub.Amount,
		CurrencyCode:    sub.CurrencyCode,
		Description:     fmt.Sprintf("%s (cycle %d)", sub.Name, sub.CompletedCycles+1),
		SubscriptionID:  sub.SubscriptionID,
		IdempotencyKey:  fmt.Sprintf("sub-bill-%s-%s", sub.SubscriptionID, scheduled.Format("2006-01-02")),
	})
	if err != nil {
		if domain.IsTransient(err) {
			// leave the subscription due; the next sweep retries the same
			// cycle under the same idempotency key
			observability.BillingSubscriptionsProcessed.WithLabelValues("deferred").Inc()
			return billSkipped, err
		}
		observability.BillingSubscriptionsProcessed.WithLabelValues("suspended_charge_failed").Inc()
		if err := e.suspendForBilling(ctx, sub, ReasonPaymentFailed); err != nil {
			return billSkipped, err
		}
		return billSuspended, nil
	}
	if !result.Approved {
		observability.BillingSubscriptionsProcessed.WithLabelValues("suspended_declined").Inc()
		if err := e.suspendForBilling(ctx, sub, ReasonPaymentFailed); err != nil {
			return billSkipped, err
		}
		return billSuspended, nil
	}

	sub.CompletedCycles++
	// advance from the scheduled date, not from now: a sweep running late
	// must not drift the whole schedule
	next := e.advance(sub, scheduled)
	sub.NextBillingDate = &next
	if sub.CyclesExhausted() {
		sub.Status = models.SubStatusExpired
		sub.NextBillingDate = nil
		end := e.now()
		sub.EndDate = &end
	}

	if err := e.save(ctx, sub); err != nil {
		return billSkipped, err
	}
	observability.BillingSubscriptionsProcessed.WithLabelValues("charged").Inc()
	e.logger.Info("billing cycle charged",
		ports.String("subscription_id", sub.SubscriptionID),
		ports.Int("completed_cycles", sub.CompletedCycles),
		ports.String("payment_id", result.PaymentID))
	return billCharged, nil
}

func (e *Engine) suspendForBilling(ctx context.Context, sub *models.Subscription, reason string) error {
	sub.Status = models.SubStatusSuspended
	sub.CancelReason = reason
	if err := e.save(ctx, sub); err != nil {
		return err
	}
	e.logger.Warn("subscription suspended during billing",
		ports.String("subscription_id", sub.SubscriptionID),
		ports.String("reason", reason))
	return nil
}

func (e *Engine) validateCreate(req *CreateRequest) error {
	if !req.Amount.IsPositive() {
		return domain.ErrSubInvalidAmount.WithDetail("amount", req.Amount.String())
	}
	if req.IntervalLength < 1 {
		return domain.NewDomainError(domain.ErrorCodeSubInvalidState, "interval length must be at least 1")
	}
	switch req.IntervalUnit {
	case models.IntervalUnitDay, models.IntervalUnitWeek, models.IntervalUnitMonth, models.IntervalUnitYear:
	default:
		return domain.NewDomainError(domain.ErrorCodeSubInvalidState, "unknown interval unit").
			WithDetail("interval_unit", string(req.IntervalUnit))
	}
	if req.TotalCycles != nil && *req.TotalCycles < 1 {
		return domain.NewDomainError(domain.ErrorCodeSubInvalidState, "total cycles must be at least 1")
	}
	return nil
}

// resolvePaymentMethod reuses an existing stored instrument when the same
// card is submitted again, otherwise stores a new one
func (e *Engine) resolvePaymentMethod(ctx context.Context, req *CreateRequest, now time.Time) (*models.PaymentMethod, error) {
	probe := &models.PaymentMethod{
		ExpirationMonth: req.ExpirationMonth,
		ExpirationYear:  req.ExpirationYear,
	}
	if probe.IsExpired(now) {
		return nil, domain.ErrPaymentMethodExpired.WithDetail("expiry", probe.Expiry())
	}

	existing, err := e.methods.FindByCard(ctx, e.db.GetDB(), req.CustomerID, req.Last4Digits, req.ExpirationMonth, req.ExpirationYear)
	if err == nil && existing != nil {
		return existing, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to look up payment method", err)
	}

	method := &models.PaymentMethod{
		ID:              uuid.New().String(),
		CustomerID:      req.CustomerID,
		Type:            models.PaymentMethodCreditCard,
		Last4Digits:     req.Last4Digits,
		ExpirationMonth: req.ExpirationMonth,
		ExpirationYear:  req.ExpirationYear,
		CardholderName:  req.CardholderName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.methods.Create(ctx, e.db.GetDB(), method); err != nil {
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to store payment method", err)
	}
	return method, nil
}

func (e *Engine) advance(sub *models.Subscription, from time.Time) time.Time {
	switch sub.IntervalUnit {
	case models.IntervalUnitDay:
		return timeutil.AddDays(from, sub.IntervalLength)
	case models.IntervalUnitWeek:
		return timeutil.AddDays(from, sub.IntervalLength*7)
	case models.IntervalUnitYear:
		return timeutil.AddYears(from, sub.IntervalLength)
	default:
		return timeutil.AddMonths(from, sub.IntervalLength)
	}
}

func (e *Engine) load(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	sub, err := e.subs.GetBySubscriptionID(ctx, e.db.GetDB(), subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound.WithDetail("subscription_id", subscriptionID)
		}
		return nil, domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to load subscription", err)
	}
	return sub, nil
}

func (e *Engine) save(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = e.now()
	if err := e.subs.Update(ctx, e.db.GetDB(), sub); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.WrapError(domain.ErrorCodeSubInvalidState, "subscription was modified concurrently", err)
		}
		return domain.NewTransient(domain.ErrorCodeDatabaseError, "failed to update subscription", err)
	}
	return nil
}
