package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntervalUnit defines the time unit for billing intervals
type IntervalUnit string

const (
	IntervalUnitDay   IntervalUnit = "day"
	IntervalUnitWeek  IntervalUnit = "week"
	IntervalUnitMonth IntervalUnit = "month"
	IntervalUnitYear  IntervalUnit = "year"
)

// SubscriptionStatus represents the current state of a subscription
type SubscriptionStatus string

const (
	SubStatusActive    SubscriptionStatus = "active"
	SubStatusSuspended SubscriptionStatus = "suspended"
	SubStatusCancelled SubscriptionStatus = "cancelled"
	SubStatusExpired   SubscriptionStatus = "expired"
	SubStatusFailed    SubscriptionStatus = "failed"
)

// IsTerminal reports whether no transitions out of the status are allowed
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubStatusCancelled || s == SubStatusExpired
}

// Subscription represents a recurring billing subscription
type Subscription struct {
	ID              string
	SubscriptionID  string // public identifier, "SUB-" prefixed
	CustomerID      string
	PaymentMethodID string
	Status          SubscriptionStatus
	Amount          decimal.Decimal
	CurrencyCode    string
	Name            string
	Description     string
	IntervalLength  int
	IntervalUnit    IntervalUnit
	TotalCycles     *int
	CompletedCycles int
	StartDate       time.Time
	NextBillingDate *time.Time // nil only in terminal states
	EndDate         *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	Version         int // optimistic lock, bumped on every update
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive returns true if the subscription is currently active
func (s *Subscription) IsActive() bool {
	return s.Status == SubStatusActive
}

// CyclesExhausted reports whether all scheduled cycles have completed
func (s *Subscription) CyclesExhausted() bool {
	return s.TotalCycles != nil && s.CompletedCycles >= *s.TotalCycles
}
