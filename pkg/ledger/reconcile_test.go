package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestReconcileMatchingTotals(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	if _, err := service.Post(context.Background(), capturePostingInput(t, "pay-jul", 50000)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	reconciler := mustNewReconciler(t, store, &stubPayouts{total: 50000}, 0)

	report, err := reconciler.Reconcile(context.Background(), mustTenantID(t, "tenant-1"), fullPeriod(t))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Status != ReconciliationStatusReconciled {
		t.Fatalf("expected reconciled, got %s", report.Status)
	}
	if report.DiscrepancyMinorUnits != 0 {
		t.Fatalf("expected zero discrepancy, got %d", report.DiscrepancyMinorUnits)
	}
}

func TestReconcileReportsDiscrepancy(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	if _, err := service.Post(context.Background(), capturePostingInput(t, "pay-aug", 50000)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	reconciler := mustNewReconciler(t, store, &stubPayouts{total: 48000}, 0)

	report, err := reconciler.Reconcile(context.Background(), mustTenantID(t, "tenant-1"), fullPeriod(t))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Status != ReconciliationStatusDiscrepancy {
		t.Fatalf("expected discrepancy, got %s", report.Status)
	}
	if report.DiscrepancyMinorUnits != 2000 {
		t.Fatalf("expected discrepancy 2000, got %d", report.DiscrepancyMinorUnits)
	}
	if report.LedgerCashMinorUnits != 50000 || report.ProcessorPayoutMinorUnits != 48000 {
		t.Fatalf("unexpected totals: %+v", report)
	}
}

func TestReconcileNetsRefundCreditsAgainstPayouts(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	if _, err := service.Post(context.Background(), capturePostingInput(t, "pay-oct", 50000)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	refundPosting := PostingInput{
		TenantID:        mustTenantID(t, "tenant-1"),
		PostingGroupID:  mustGroupID(t, "rfnd_re-oct"),
		DedupeKey:       mustDedupeKey(t, "re-oct:refund"),
		SourceReference: "pay-oct",
		Legs: []Leg{
			mustLeg(t, DefaultSiteRevenueAccountCode, DirectionDebit, 8000),
			mustLeg(t, DefaultCashAccountCode, DirectionCredit, 8000),
		},
	}
	if _, err := service.Post(context.Background(), refundPosting); err != nil {
		t.Fatalf("refund posting: %v", err)
	}
	// Processor payouts arrive net of refunds.
	reconciler := mustNewReconciler(t, store, &stubPayouts{total: 42000}, 0)

	report, err := reconciler.Reconcile(context.Background(), mustTenantID(t, "tenant-1"), fullPeriod(t))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.LedgerCashMinorUnits != 42000 {
		t.Fatalf("expected net cash 42000, got %d", report.LedgerCashMinorUnits)
	}
	if report.Status != ReconciliationStatusReconciled {
		t.Fatalf("expected reconciled, got %s", report.Status)
	}
}

func TestReconcileToleranceAbsorbsSmallGaps(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	if _, err := service.Post(context.Background(), capturePostingInput(t, "pay-sep", 50000)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	reconciler := mustNewReconciler(t, store, &stubPayouts{total: 49950}, 100)

	report, err := reconciler.Reconcile(context.Background(), mustTenantID(t, "tenant-1"), fullPeriod(t))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Status != ReconciliationStatusReconciled {
		t.Fatalf("expected reconciled within tolerance, got %s", report.Status)
	}
	if report.DiscrepancyMinorUnits != 50 {
		t.Fatalf("expected discrepancy 50 reported as data, got %d", report.DiscrepancyMinorUnits)
	}
}

func TestReconcileExcludesEntriesOutsidePeriod(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	inside := capturePostingInput(t, "pay-inside", 30000)
	if _, err := service.Post(context.Background(), inside); err != nil {
		t.Fatalf("capture inside: %v", err)
	}
	outside := capturePostingInput(t, "pay-outside", 9999)
	outside.OccurredAtUnixUTC = fixedNowUnix + 86400
	if _, err := service.Post(context.Background(), outside); err != nil {
		t.Fatalf("capture outside: %v", err)
	}
	reconciler := mustNewReconciler(t, store, &stubPayouts{total: 30000}, 0)

	report, err := reconciler.Reconcile(context.Background(), mustTenantID(t, "tenant-1"),
		mustPeriod(t, fixedNowUnix-1, fixedNowUnix+1))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.LedgerCashMinorUnits != 30000 {
		t.Fatalf("expected only in-period cash, got %d", report.LedgerCashMinorUnits)
	}
	if report.Status != ReconciliationStatusReconciled {
		t.Fatalf("expected reconciled, got %s", report.Status)
	}
}

func TestReconcilePayoutSourceFailure(t *testing.T) {
	t.Parallel()
	sourceErr := errors.New("processor unavailable")
	reconciler := mustNewReconciler(t, newStubStore(), &stubPayouts{err: sourceErr}, 0)

	_, err := reconciler.Reconcile(context.Background(), mustTenantID(t, "tenant-1"), fullPeriod(t))
	if !errors.Is(err, sourceErr) {
		t.Fatalf("expected payout source error, got %v", err)
	}
}

func TestParsePeriodCalendarMonth(t *testing.T) {
	t.Parallel()
	period, err := ParsePeriod("2025-07")
	if err != nil {
		t.Fatalf("parse period: %v", err)
	}
	// 2025-07-01T00:00:00Z .. 2025-08-01T00:00:00Z
	if period.StartUnixUTC() != 1751328000 {
		t.Fatalf("unexpected start: %d", period.StartUnixUTC())
	}
	if period.EndUnixUTC() != 1754006400 {
		t.Fatalf("unexpected end: %d", period.EndUnixUTC())
	}
	if _, err := ParsePeriod("july 2025"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

// --- helpers ---

type stubPayouts struct {
	total int64
	err   error
}

func (p *stubPayouts) PayoutTotal(ctx context.Context, tenantID TenantID, period Period) (int64, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.total, nil
}

func mustNewReconciler(t *testing.T, store Store, payouts PayoutSource, tolerance int64) *Reconciler {
	t.Helper()
	reconciler, err := NewReconciler(store, payouts, AccountCode{}, tolerance)
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	return reconciler
}

func fullPeriod(t *testing.T) Period {
	t.Helper()
	return mustPeriod(t, 0, fixedNowUnix+1)
}
