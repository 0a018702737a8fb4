package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the state of a payment
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusVoided     PaymentStatus = "voided"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Payment is the durable record of a single charge attempt outcome.
// Recurring billing writes one row per successful cycle; the webhook
// processor later reconciles status against processor notifications.
type Payment struct {
	ID                   string
	PaymentID            string // public identifier, "PAY-" prefixed
	CustomerID           string
	SubscriptionID       string // empty for one-time payments
	Amount               decimal.Decimal
	CurrencyCode         string
	Status               PaymentStatus
	Gateway              string
	GatewayTransactionID string
	Description          string
	Last4Digits          string
	IdempotencyKey       string
	CorrelationID        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
