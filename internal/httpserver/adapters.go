package httpserver

import (
	"context"

	"github.com/campreserv/core/pkg/ledger"
	"github.com/campreserv/core/pkg/payments"
)

// processorRefunds adapts payments.Client to the refund engine's processor
// contract.
type processorRefunds struct {
	client payments.Client
}

// NewRefundProcessor returns a ledger.RefundProcessor backed by the payments
// client.
func NewRefundProcessor(client payments.Client) ledger.RefundProcessor {
	return processorRefunds{client: client}
}

func (processor processorRefunds) ExecuteRefund(ctx context.Context, execution ledger.RefundExecution) (ledger.RefundReceipt, error) {
	refund, err := processor.client.CreateRefund(ctx, payments.RefundRequest{
		TenantID:         execution.TenantID.String(),
		PaymentReference: execution.PaymentReference,
		AmountMinorUnits: execution.AmountMinorUnits.Int64(),
		Reason:           execution.Reason,
		IdempotencyKey:   execution.IdempotencyKey,
	})
	if err != nil {
		return ledger.RefundReceipt{}, err
	}
	return ledger.RefundReceipt{
		RefundID:         refund.RefundID,
		AmountMinorUnits: refund.AmountMinorUnits,
	}, nil
}

// processorPayouts adapts payments.Client to the reconciler's payout source
// contract.
type processorPayouts struct {
	client payments.Client
}

// NewPayoutSource returns a ledger.PayoutSource backed by the payments
// client.
func NewPayoutSource(client payments.Client) ledger.PayoutSource {
	return processorPayouts{client: client}
}

func (source processorPayouts) PayoutTotal(ctx context.Context, tenantID ledger.TenantID, period ledger.Period) (int64, error) {
	payouts, err := source.client.ListPayouts(ctx, tenantID.String(), period.StartUnixUTC(), period.EndUnixUTC())
	if err != nil {
		return 0, err
	}
	var total int64
	for _, payout := range payouts {
		total += payout.AmountMinorUnits
	}
	return total, nil
}
