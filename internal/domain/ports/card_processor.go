package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/corepay/payment-gateway/internal/domain/models"
)

// ChargeRequest describes a single charge against a stored payment method
type ChargeRequest struct {
	PaymentMethodID string
	Amount          decimal.Decimal
	CurrencyCode    string
	Description     string
	IdempotencyKey  string
}

// RefundRequest describes a refund against a settled transaction
type RefundRequest struct {
	GatewayTransactionID string
	Amount               decimal.Decimal
	Reason               string
}

// ChargeResult is the processor's verdict on a charge/refund/void attempt.
// A decline is a terminal result, not an error; errors are reserved for
// transport and processor failures where the outcome is unknown.
type ChargeResult struct {
	GatewayTransactionID string
	Status               models.PaymentStatus
	ResponseCode         string
	ResponseMessage      string
	Approved             bool
}

// CardProcessor is the external card-network collaborator. This service only
// orchestrates calls to it and persists outcomes; the implementation lives
// outside this repository.
type CardProcessor interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, req *RefundRequest) (*ChargeResult, error)
	Void(ctx context.Context, gatewayTransactionID string) (*ChargeResult, error)
}
