package ledger

import (
	"context"
	"fmt"
)

// PayoutSource reports processor payout totals for a period; implemented by
// the payments collaborator client.
type PayoutSource interface {
	PayoutTotal(ctx context.Context, tenantID TenantID, period Period) (int64, error)
}

// Reconciler compares net ledger cash movement against processor payouts. It
// never mutates the ledger and may be re-run at any time.
type Reconciler struct {
	store               Store
	payouts             PayoutSource
	cashAccount         AccountCode
	toleranceMinorUnits int64
}

// NewReconciler wires a Reconciler. A zero-value cash account falls back to
// the default cash code; tolerance defaults to exact matching.
func NewReconciler(store Store, payouts PayoutSource, cashAccount AccountCode, toleranceMinorUnits int64) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if payouts == nil {
		return nil, fmt.Errorf("%w: payout source dependency is nil", ErrInvalidServiceConfig)
	}
	if toleranceMinorUnits < 0 {
		return nil, fmt.Errorf("%w: negative tolerance", ErrInvalidServiceConfig)
	}
	if cashAccount.value == "" {
		cashAccount = AccountCode{value: DefaultCashAccountCode}
	}
	return &Reconciler{
		store:               store,
		payouts:             payouts,
		cashAccount:         cashAccount,
		toleranceMinorUnits: toleranceMinorUnits,
	}, nil
}

// Reconcile sums net cash for the period (debits minus credits, so refunds
// offset captures the same way they do in processor payouts) and compares it
// against the payout total. Discrepancies are reported as data; correction
// requires a manually posted adjustment, never an automatic write.
func (reconciler *Reconciler) Reconcile(ctx context.Context, tenantID TenantID, period Period) (ReconciliationReport, error) {
	if tenantID.value == "" {
		return ReconciliationReport{}, fmt.Errorf("%w: tenant id required", ErrInvalidTenantID)
	}
	cashDebits, err := reconciler.store.SumAccount(ctx, tenantID, reconciler.cashAccount, DirectionDebit, period)
	if err != nil {
		return ReconciliationReport{}, err
	}
	cashCredits, err := reconciler.store.SumAccount(ctx, tenantID, reconciler.cashAccount, DirectionCredit, period)
	if err != nil {
		return ReconciliationReport{}, err
	}
	ledgerCash := cashDebits - cashCredits
	payoutTotal, err := reconciler.payouts.PayoutTotal(ctx, tenantID, period)
	if err != nil {
		return ReconciliationReport{}, WrapError(operationReconcile, "payouts", "fetch", err)
	}
	discrepancy := ledgerCash - payoutTotal
	status := ReconciliationStatusReconciled
	if absMinorUnits(discrepancy) > reconciler.toleranceMinorUnits {
		status = ReconciliationStatusDiscrepancy
	}
	return ReconciliationReport{
		TenantID:                  tenantID,
		Period:                    period,
		LedgerCashMinorUnits:      ledgerCash,
		ProcessorPayoutMinorUnits: payoutTotal,
		DiscrepancyMinorUnits:     discrepancy,
		Status:                    status,
	}, nil
}

func absMinorUnits(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}
