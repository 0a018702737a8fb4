// Package processor contains card processor adapters. The sandbox adapter
// stands in for the real processor in development and test environments.
package processor

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/corepay/payment-gateway/internal/domain/models"
	"github.com/corepay/payment-gateway/internal/domain/ports"
)

// Sandbox approves every operation and fabricates gateway transaction ids.
// A description containing "DECLINE" is declined, which gives integration
// tests a deterministic failure path.
type Sandbox struct {
	logger ports.Logger
}

// NewSandbox creates a sandbox processor
func NewSandbox(logger ports.Logger) *Sandbox {
	return &Sandbox{logger: logger}
}

// Charge simulates an auth+capture
func (s *Sandbox) Charge(ctx context.Context, req *ports.ChargeRequest) (*ports.ChargeResult, error) {
	if strings.Contains(req.Description, "DECLINE") {
		return &ports.ChargeResult{
			GatewayTransactionID: "sandbox-" + uuid.New().String(),
			Status:               models.PaymentStatusFailed,
			ResponseCode:         "2",
			ResponseMessage:      "declined by sandbox",
		}, nil
	}
	s.logger.Debug("sandbox charge approved",
		ports.String("payment_method_id", req.PaymentMethodID),
		ports.String("amount", req.Amount.String()))
	return &ports.ChargeResult{
		GatewayTransactionID: "sandbox-" + uuid.New().String(),
		Status:               models.PaymentStatusCaptured,
		ResponseCode:         "1",
		ResponseMessage:      "approved",
		Approved:             true,
	}, nil
}

// Refund simulates a refund
func (s *Sandbox) Refund(ctx context.Context, req *ports.RefundRequest) (*ports.ChargeResult, error) {
	return &ports.ChargeResult{
		GatewayTransactionID: "sandbox-" + uuid.New().String(),
		Status:               models.PaymentStatusRefunded,
		ResponseCode:         "1",
		ResponseMessage:      "refunded",
		Approved:             true,
	}, nil
}

// Void simulates a void
func (s *Sandbox) Void(ctx context.Context, gatewayTransactionID string) (*ports.ChargeResult, error) {
	return &ports.ChargeResult{
		GatewayTransactionID: gatewayTransactionID,
		Status:               models.PaymentStatusVoided,
		ResponseCode:         "1",
		ResponseMessage:      "voided",
		Approved:             true,
	}, nil
}
