package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/corepay/payment-gateway/internal/domain"
	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
	"github.com/corepay/payment-gateway/internal/services/payment"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...ports.Field)  {}
func (noopLogger) Error(string, ...ports.Field) {}
func (noopLogger) Warn(string, ...ports.Field)  {}
func (noopLogger) Debug(string, ...ports.Field) {}

type fakeDB struct{}

func (fakeDB) GetDB() *pgxpool.Pool { return nil }
func (fakeDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type mockSubRepo struct{ mock.Mock }

func (m *mockSubRepo) Create(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *mockSubRepo) GetBySubscriptionID(ctx context.Context, tx ports.DBTX, subscriptionID string) (*models.Subscription, error) {
	args := m.Called(ctx, tx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *mockSubRepo) Update(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *mockSubRepo) ListByCustomer(ctx context.Context, tx ports.DBTX, customerID string) ([]*models.Subscription, error) {
	args := m.Called(ctx, tx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *mockSubRepo) ListDueForBilling(ctx context.Context, tx ports.DBTX, asOf time.Time, limit int32) ([]*models.Subscription, error) {
	args := m.Called(ctx, tx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type mockMethodRepo struct{ mock.Mock }

func (m *mockMethodRepo) Create(ctx context.Context, tx ports.DBTX, pm *models.PaymentMethod) error {
	return m.Called(ctx, tx, pm).Error(0)
}

func (m *mockMethodRepo) GetByID(ctx context.Context, tx ports.DBTX, id string) (*models.PaymentMethod, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentMethod), args.Error(1)
}

func (m *mockMethodRepo) FindByCard(ctx context.Context, tx ports.DBTX, customerID, last4 string, expMonth, expYear int) (*models.PaymentMethod, error) {
	args := m.Called(ctx, tx, customerID, last4, expMonth, expYear)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentMethod), args.Error(1)
}

type mockCharger struct{ mock.Mock }

func (m *mockCharger) Purchase(ctx context.Context, req *payment.PurchaseRequest) (*payment.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

var fixedNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(subs *mockSubRepo, methods *mockMethodRepo, charger *mockCharger) *Engine {
	e := NewEngine(fakeDB{}, subs, methods, charger, 100, noopLogger{})
	e.now = func() time.Time { return fixedNow }
	return e
}

func monthlyRequest() *CreateRequest {
	return &CreateRequest{
		CustomerID:      "cust-1",
		Name:            "Pro Plan",
		Amount:          decimal.NewFromFloat(29.99),
		IntervalLength:  1,
		IntervalUnit:    models.IntervalUnitMonth,
		Last4Digits:     "4242",
		ExpirationMonth: 12,
		ExpirationYear:  fixedNow.Year() + 2,
	}
}

func activeSubscription() *models.Subscription {
	next := fixedNow.Add(-time.Hour)
	return &models.Subscription{
		ID:              "id-1",
		SubscriptionID:  "SUB-1",
		CustomerID:      "cust-1",
		PaymentMethodID: "pm-1",
		Status:          models.SubStatusActive,
		Amount:          decimal.NewFromFloat(29.99),
		CurrencyCode:    "USD",
		Name:            "Pro Plan",
		IntervalLength:  1,
		IntervalUnit:    models.IntervalUnitMonth,
		CompletedCycles: 2,
		StartDate:       fixedNow.AddDate(0, -2, 0),
		NextBillingDate: &next,
		Version:         3,
	}
}

func validStoredMethod() *models.PaymentMethod {
	return &models.PaymentMethod{
		ID:              "pm-1",
		CustomerID:      "cust-1",
		Last4Digits:     "4242",
		ExpirationMonth: 12,
		ExpirationYear:  fixedNow.Year() + 2,
	}
}

func approvedResult() *payment.Result {
	return &payment.Result{
		PaymentID:            "PAY-1",
		Status:               string(models.PaymentStatusCaptured),
		GatewayTransactionID: "txn-1",
		Approved:             true,
	}
}

func declinedResult() *payment.Result {
	return &payment.Result{
		PaymentID:       "PAY-1",
		Status:          string(models.PaymentStatusFailed),
		ResponseMessage: "insufficient funds",
		Approved:        false,
	}
}

func TestCreate_ApprovedChargeActivates(t *testing.T) {
	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	methods.On("FindByCard", mock.Anything, mock.Anything, "cust-1", "4242", 12, fixedNow.Year()+2).
		Return(nil, domain.ErrNotFound)
	methods.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	charger.On("Purchase", mock.Anything, mock.Anything).Return(approvedResult(), nil)
	subs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(subs, methods, charger)
	sub, err := e.Create(context.Background(), monthlyRequest())

	require.NoError(t, err)
	assert.Equal(t, models.SubStatusActive, sub.Status)
	assert.Equal(t, 1, sub.CompletedCycles)
	require.NotNil(t, sub.NextBillingDate)
	assert.Equal(t, time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC), *sub.NextBillingDate)
}

func TestCreate_DeclinedChargePersistsFailedSubscription(t *testing.T) {
	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	methods.On("FindByCard", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrNotFound)
	methods.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	charger.On("Purchase", mock.Anything, mock.Anything).Return(declinedResult(), nil)
	subs.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubStatusFailed
	})).Return(nil)

	e := newTestEngine(subs, methods, charger)
	sub, err := e.Create(context.Background(), monthlyRequest())

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePaymentDeclined))
	require.NotNil(t, sub)
	assert.Equal(t, models.SubStatusFailed, sub.Status)
	subs.AssertExpectations(t)
}

func TestCreate_ExpiredCardRejectedBeforeCharge(t *testing.T) {
	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	req := monthlyRequest()
	req.ExpirationYear = fixedNow.Year() - 1

	e := newTestEngine(subs, methods, charger)
	_, err := e.Create(context.Background(), req)

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePMExpired))
	charger.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	subs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_CardExpiringThisMonthIsStillValid(t *testing.T) {
	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	req := monthlyRequest()
	req.ExpirationMonth = int(fixedNow.Month())
	req.ExpirationYear = fixedNow.Year()

	methods.On("FindByCard", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.ErrNotFound)
	methods.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	charger.On("Purchase", mock.Anything, mock.Anything).Return(approvedResult(), nil)
	subs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(subs, methods, charger)
	_, err := e.Create(context.Background(), req)

	require.NoError(t, err)
}

func TestCreate_ReusesExistingPaymentMethod(t *testing.T) {
	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	methods.On("FindByCard", mock.Anything, mock.Anything, "cust-1", "4242", 12, fixedNow.Year()+2).
		Return(validStoredMethod(), nil)
	charger.On("Purchase", mock.Anything, mock.MatchedBy(func(req *payment.PurchaseRequest) bool {
		return req.PaymentMethodID == "pm-1"
	})).Return(approvedResult(), nil)
	subs.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(subs, methods, charger)
	_, err := e.Create(context.Background(), monthlyRequest())

	require.NoError(t, err)
	methods.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancel_ActiveSubscription(t *testing.T) {
	subs := new(mockSubRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(activeSubscription(), nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubStatusCancelled && s.NextBillingDate == nil && s.CancelledAt != nil
	})).Return(nil)

	e := newTestEngine(subs, new(mockMethodRepo), new(mockCharger))
	sub, err := e.Cancel(context.Background(), "SUB-1", "customer request")

	require.NoError(t, err)
	assert.Equal(t, "customer request", sub.CancelReason)
	subs.AssertExpectations(t)
}

func TestCancel_AlreadyCancelled(t *testing.T) {
	cancelled := activeSubscription()
	cancelled.Status = models.SubStatusCancelled

	subs := new(mockSubRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(cancelled, nil)

	e := newTestEngine(subs, new(mockMethodRepo), new(mockCharger))
	_, err := e.Cancel(context.Background(), "SUB-1", "again")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSubInvalidState))
	subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestReactivate_StaleBillingDateRecomputedFromNow(t *testing.T) {
	suspended := activeSubscription()
	suspended.Status = models.SubStatusSuspended
	stale := fixedNow.AddDate(0, -3, 0)
	suspended.NextBillingDate = &stale

	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(suspended, nil)
	methods.On("GetByID", mock.Anything, mock.Anything, "pm-1").Return(validStoredMethod(), nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := newTestEngine(subs, methods, new(mockCharger))
	sub, err := e.Reactivate(context.Background(), "SUB-1")

	require.NoError(t, err)
	assert.Equal(t, models.SubStatusActive, sub.Status)
	require.NotNil(t, sub.NextBillingDate)
	assert.Equal(t, time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC), *sub.NextBillingDate)
}

func TestReactivate_ExpiredCardFails(t *testing.T) {
	suspended := activeSubscription()
	suspended.Status = models.SubStatusSuspended

	expired := validStoredMethod()
	expired.ExpirationYear = fixedNow.Year() - 1

	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(suspended, nil)
	methods.On("GetByID", mock.Anything, mock.Anything, "pm-1").Return(expired, nil)

	e := newTestEngine(subs, methods, new(mockCharger))
	_, err := e.Reactivate(context.Background(), "SUB-1")

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePMExpired))
	subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAmount_RequiresActive(t *testing.T) {
	suspended := activeSubscription()
	suspended.Status = models.SubStatusSuspended

	subs := new(mockSubRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(suspended, nil)

	e := newTestEngine(subs, new(mockMethodRepo), new(mockCharger))
	_, err := e.UpdateAmount(context.Background(), "SUB-1", decimal.NewFromFloat(39.99))

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSubInvalidState))
}

func TestUpdateNextBillingDate_RejectsPast(t *testing.T) {
	e := newTestEngine(new(mockSubRepo), new(mockMethodRepo), new(mockCharger))
	_, err := e.UpdateNextBillingDate(context.Background(), "SUB-1", fixedNow.Add(-time.Minute))

	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSubInvalidDate))
}

func TestProcessDue_ChargesAndAdvancesSchedule(t *testing.T) {
	due := activeSubscription()
	scheduled := *due.NextBillingDate

	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	subs.On("ListDueForBilling", mock.Anything, mock.Anything, fixedNow, int32(100)).
		Return([]*models.Subscription{due}, nil)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(due, nil)
	methods.On("GetByID", mock.Anything, mock.Anything, "pm-1").Return(validStoredMethod(), nil)
	charger.On("Purchase", mock.Anything, mock.MatchedBy(func(req *payment.PurchaseRequest) bool {
		return req.IdempotencyKey == "sub-bill-SUB-1-"+scheduled.Format("2006-01-02")
	})).Return(approvedResult(), nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.CompletedCycles == 3 && s.NextBillingDate != nil && s.NextBillingDate.After(scheduled)
	})).Return(nil)

	e := newTestEngine(subs, methods, charger)
	processed, failed, err := e.ProcessDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, failed)
	subs.AssertExpectations(t)
}

func TestProcessDue_DeclineSuspendsSubscription(t *testing.T) {
	due := activeSubscription()

	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	subs.On("ListDueForBilling", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Subscription{due}, nil)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(due, nil)
	methods.On("GetByID", mock.Anything, mock.Anything, "pm-1").Return(validStoredMethod(), nil)
	charger.On("Purchase", mock.Anything, mock.Anything).Return(declinedResult(), nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubStatusSuspended && s.CancelReason == ReasonPaymentFailed
	})).Return(nil)

	e := newTestEngine(subs, methods, charger)
	processed, failed, err := e.ProcessDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, processed, "a suspended subscription is not a successfully billed cycle")
	assert.Equal(t, 1, failed)
	subs.AssertExpectations(t)
}

func TestProcessDue_ExpiredMethodSuspendsWithoutCharging(t *testing.T) {
	due := activeSubscription()

	expired := validStoredMethod()
	expired.ExpirationYear = fixedNow.Year() - 1

	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	subs.On("ListDueForBilling", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Subscription{due}, nil)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(due, nil)
	methods.On("GetByID", mock.Anything, mock.Anything, "pm-1").Return(expired, nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubStatusSuspended && s.CancelReason == ReasonPaymentMethodExpired
	})).Return(nil)

	e := newTestEngine(subs, methods, charger)
	processed, failed, err := e.ProcessDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 1, failed)
	charger.AssertNotCalled(t, "Purchase", mock.Anything, mock.Anything)
	subs.AssertExpectations(t)
}

func TestProcessDue_FinalCycleExpiresSubscription(t *testing.T) {
	due := activeSubscription()
	total := 3
	due.TotalCycles = &total // this charge completes cycle 3 of 3

	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	subs.On("ListDueForBilling", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Subscription{due}, nil)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(due, nil)
	methods.On("GetByID", mock.Anything, mock.Anything, "pm-1").Return(validStoredMethod(), nil)
	charger.On("Purchase", mock.Anything, mock.Anything).Return(approvedResult(), nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubStatusExpired && s.NextBillingDate == nil && s.CompletedCycles == 3
	})).Return(nil)

	e := newTestEngine(subs, methods, charger)
	_, _, err := e.ProcessDue(context.Background())

	require.NoError(t, err)
	subs.AssertExpectations(t)
}

func TestProcessDue_TransientChargeErrorLeavesSubscriptionDue(t *testing.T) {
	due := activeSubscription()

	subs := new(mockSubRepo)
	methods := new(mockMethodRepo)
	charger := new(mockCharger)

	subs.On("ListDueForBilling", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*models.Subscription{due}, nil)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(due, nil)
	methods.On("GetByID", mock.Anything, mock.Anything, "pm-1").Return(validStoredMethod(), nil)
	charger.On("Purchase", mock.Anything, mock.Anything).
		Return(nil, domain.NewTransient(domain.ErrorCodeProcessorError, "processor unavailable", errors.New("timeout")))

	e := newTestEngine(subs, methods, charger)
	processed, failed, err := e.ProcessDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 1, failed)
	subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyRemoteStatus_TerminalLocalStateWins(t *testing.T) {
	cancelled := activeSubscription()
	cancelled.Status = models.SubStatusCancelled

	subs := new(mockSubRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(cancelled, nil)

	e := newTestEngine(subs, new(mockMethodRepo), new(mockCharger))
	err := e.ApplyRemoteStatus(context.Background(), "SUB-1", models.SubStatusActive)

	require.NoError(t, err)
	subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyRemoteStatus_MatchingStatusIsNoOp(t *testing.T) {
	subs := new(mockSubRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(activeSubscription(), nil)

	e := newTestEngine(subs, new(mockMethodRepo), new(mockCharger))
	err := e.ApplyRemoteStatus(context.Background(), "SUB-1", models.SubStatusActive)

	require.NoError(t, err)
	subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyRemoteStatus_SuspensionFromProcessor(t *testing.T) {
	subs := new(mockSubRepo)
	subs.On("GetBySubscriptionID", mock.Anything, mock.Anything, "SUB-1").Return(activeSubscription(), nil)
	subs.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
		return s.Status == models.SubStatusSuspended
	})).Return(nil)

	e := newTestEngine(subs, new(mockMethodRepo), new(mockCharger))
	err := e.ApplyRemoteStatus(context.Background(), "SUB-1", models.SubStatusSuspended)

	require.NoError(t, err)
	subs.AssertExpectations(t)
}
