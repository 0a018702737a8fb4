package models

import (
	"fmt"
	"time"
)

// PaymentMethodType identifies the instrument kind
type PaymentMethodType string

const PaymentMethodCreditCard PaymentMethodType = "credit_card"

// PaymentMethod is a stored (tokenized) payment instrument. Card data is
// never stored; only the last four digits and expiry survive tokenization.
type PaymentMethod struct {
	ID              string
	CustomerID      string
	Type            PaymentMethodType
	Last4Digits     string
	ExpirationMonth int // 1-12
	ExpirationYear  int // four digits
	CardholderName  string
	IsDefault       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsExpired reports whether the card expired before the given instant.
// A card expiring in the current calendar month is still valid.
func (pm *PaymentMethod) IsExpired(now time.Time) bool {
	if pm.ExpirationMonth < 1 || pm.ExpirationMonth > 12 || pm.ExpirationYear == 0 {
		return true
	}
	if pm.ExpirationYear != now.Year() {
		return pm.ExpirationYear < now.Year()
	}
	return time.Month(pm.ExpirationMonth) < now.Month()
}

// Expiry returns the MM/YYYY rendering used in logs and API responses
func (pm *PaymentMethod) Expiry() string {
	return fmt.Sprintf("%02d/%04d", pm.ExpirationMonth, pm.ExpirationYear)
}
