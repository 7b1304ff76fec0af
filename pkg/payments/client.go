// Package payments is the boundary to the external card-processing provider.
// The core consumes a narrow Client interface; webhook payloads are decoded
// once here into closed event types before they reach the ledger engines.
package payments

import (
	"context"
	"errors"
)

// Client errors.
var (
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrProcessorRejected    = errors.New("payment processor rejected request")
)

// ChargeRequest asks the processor to capture a payment.
type ChargeRequest struct {
	TenantID         string `json:"tenant_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
	PaymentMethod    string `json:"payment_method"`
	Description      string `json:"description,omitempty"`
	IdempotencyKey   string `json:"-"`
}

// Charge is the processor's record of a captured payment.
type Charge struct {
	ChargeID         string `json:"id"`
	Status           string `json:"status"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
}

// RefundRequest asks the processor to return money against a prior charge.
type RefundRequest struct {
	TenantID         string `json:"tenant_id"`
	PaymentReference string `json:"payment_reference"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Reason           string `json:"reason,omitempty"`
	IdempotencyKey   string `json:"-"`
}

// Refund is the processor's record of an executed refund.
type Refund struct {
	RefundID         string `json:"id"`
	Status           string `json:"status"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
}

// Payout is one settlement transfer from the processor to the tenant's bank.
type Payout struct {
	PayoutID         string `json:"id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	ArrivedUnixUTC   int64  `json:"arrived_at"`
}

// Client is the processor operations the core depends on. Idempotency keys
// are passed through so processor-side retries are safe.
type Client interface {
	CreateCharge(ctx context.Context, request ChargeRequest) (Charge, error)
	CreateRefund(ctx context.Context, request RefundRequest) (Refund, error)
	ListPayouts(ctx context.Context, tenantID string, fromUnixUTC, toUnixUTC int64) ([]Payout, error)
}
