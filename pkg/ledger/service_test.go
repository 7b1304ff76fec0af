package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestPostCommitsBalancedPosting(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)

	result, err := service.Post(context.Background(), capturePostingInput(t, "pay-1", 12500))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if result.Replayed {
		t.Fatalf("expected fresh commit, got replay")
	}
	if result.CommittedUnix != fixedNowUnix {
		t.Fatalf("expected commit at %d, got %d", fixedNowUnix, result.CommittedUnix)
	}
	stored := store.mustPosting(t, "tenant-1", "pay-1:capture")
	if len(stored.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(stored.Legs))
	}
	if stored.UnbalancedAdjustment {
		t.Fatalf("expected balanced posting")
	}
}

func TestPostReplaysDedupeKey(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	input := capturePostingInput(t, "pay-redelivered", 9900)

	first, err := service.Post(context.Background(), input)
	if err != nil {
		t.Fatalf("first post: %v", err)
	}
	second, err := service.Post(context.Background(), input)
	if err != nil {
		t.Fatalf("second post: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay on redelivery")
	}
	if second.PostingGroupID != first.PostingGroupID {
		t.Fatalf("expected same group, got %s and %s", first.PostingGroupID, second.PostingGroupID)
	}
	if got := store.insertCount; got != 1 {
		t.Fatalf("expected 1 insert, got %d", got)
	}
}

func TestPostRetriesAfterDuplicateInsertRace(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	store.insertRace = true
	service := mustNewService(t, store)

	result, err := service.Post(context.Background(), capturePostingInput(t, "pay-race", 5000))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if !result.Replayed {
		t.Fatalf("expected replayed result after losing the insert race")
	}
}

func TestPostRejectsUnbalancedLegs(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore())
	input := capturePostingInput(t, "pay-unbalanced", 5000)
	input.Legs[1] = mustLeg(t, DefaultSiteRevenueAccountCode, DirectionCredit, 4000)

	_, err := service.Post(context.Background(), input)
	if !errors.Is(err, ErrUnbalancedPosting) {
		t.Fatalf("expected ErrUnbalancedPosting, got %v", err)
	}
}

func TestPostRejectsUnknownAccount(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore())
	input := capturePostingInput(t, "pay-unknown", 5000)
	input.Legs[0] = mustLeg(t, "9999", DirectionDebit, 5000)

	_, err := service.Post(context.Background(), input)
	if !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestPostRejectsInvalidMetadata(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore())
	input := capturePostingInput(t, "pay-meta", 5000)
	input.MetadataJSON = "{not json"

	_, err := service.Post(context.Background(), input)
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("expected ErrInvalidMetadata, got %v", err)
	}
}

func TestPostRequiresLegs(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore())
	input := capturePostingInput(t, "pay-empty", 5000)
	input.Legs = nil

	_, err := service.Post(context.Background(), input)
	if !errors.Is(err, ErrInvalidLegs) {
		t.Fatalf("expected ErrInvalidLegs, got %v", err)
	}
}

func TestPostAdjustmentRequiresApprover(t *testing.T) {
	t.Parallel()
	service := mustNewService(t, newStubStore())

	_, err := service.PostAdjustment(context.Background(), capturePostingInput(t, "adj-1", 100), "")
	if !errors.Is(err, ErrAdjustmentNotApproved) {
		t.Fatalf("expected ErrAdjustmentNotApproved, got %v", err)
	}
}

func TestPostAdjustmentAllowsUnbalancedLegs(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	input := PostingInput{
		TenantID:       mustTenantID(t, "tenant-1"),
		PostingGroupID: mustGroupID(t, "adj_grp"),
		DedupeKey:      mustDedupeKey(t, "adj-writeoff"),
		Legs:           []Leg{mustLeg(t, DefaultCashAccountCode, DirectionCredit, 37)},
	}

	result, err := service.PostAdjustment(context.Background(), input, "ops@example.com")
	if err != nil {
		t.Fatalf("post adjustment: %v", err)
	}
	if result.Replayed {
		t.Fatalf("expected fresh commit")
	}
	stored := store.mustPosting(t, "tenant-1", "adj-writeoff")
	if !stored.UnbalancedAdjustment {
		t.Fatalf("expected unbalanced adjustment flag")
	}
	if stored.ApprovedBy != "ops@example.com" {
		t.Fatalf("expected approver recorded, got %q", stored.ApprovedBy)
	}
}

func TestPostNotifiesCommitListenerOnceOnly(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	var committed []Posting
	listener := CommitListenerFunc(func(_ context.Context, posting Posting) {
		committed = append(committed, posting)
	})
	service, err := NewService(store, mustRegistry(t), fixedNow, WithCommitListener(listener))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	input := capturePostingInput(t, "pay-listen", 800)

	if _, err := service.Post(context.Background(), input); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if _, err := service.Post(context.Background(), input); err != nil {
		t.Fatalf("second post: %v", err)
	}
	if len(committed) != 1 {
		t.Fatalf("expected listener called once, got %d", len(committed))
	}
}

func TestEntriesClampsLimit(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	tenantID := mustTenantID(t, "tenant-1")

	if _, err := service.Entries(context.Background(), tenantID, EntryFilter{}); err != nil {
		t.Fatalf("entries: %v", err)
	}
	if store.lastFilter.Limit != defaultEntryListLimit {
		t.Fatalf("expected default limit %d, got %d", defaultEntryListLimit, store.lastFilter.Limit)
	}
	if _, err := service.Entries(context.Background(), tenantID, EntryFilter{Limit: 10000}); err != nil {
		t.Fatalf("entries: %v", err)
	}
	if store.lastFilter.Limit != maxEntryListLimit {
		t.Fatalf("expected max limit %d, got %d", maxEntryListLimit, store.lastFilter.Limit)
	}
}

func TestAccountBalanceSignsByNormalSide(t *testing.T) {
	t.Parallel()
	store := newStubStore()
	service := mustNewService(t, store)
	tenantID := mustTenantID(t, "tenant-1")
	period := mustPeriod(t, 0, fixedNowUnix+1)

	if _, err := service.Post(context.Background(), capturePostingInput(t, "pay-bal", 7000)); err != nil {
		t.Fatalf("post: %v", err)
	}

	cash, err := service.AccountBalance(context.Background(), tenantID, mustAccountCode(t, DefaultCashAccountCode), period)
	if err != nil {
		t.Fatalf("cash balance: %v", err)
	}
	if cash != 7000 {
		t.Fatalf("expected cash balance 7000, got %d", cash)
	}
	revenue, err := service.AccountBalance(context.Background(), tenantID, mustAccountCode(t, DefaultSiteRevenueAccountCode), period)
	if err != nil {
		t.Fatalf("revenue balance: %v", err)
	}
	if revenue != 7000 {
		t.Fatalf("expected revenue balance 7000, got %d", revenue)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()
	registry := mustRegistry(t)
	if _, err := NewService(nil, registry, fixedNow); !errors.Is(err, ErrInvalidServiceConfig) {
		t.Fatalf("expected invalid service config for nil store, got %v", err)
	}
	if _, err := NewService(newStubStore(), nil, fixedNow); !errors.Is(err, ErrInvalidServiceConfig) {
		t.Fatalf("expected invalid service config for nil registry, got %v", err)
	}
	if _, err := NewService(newStubStore(), registry, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		t.Fatalf("expected invalid service config for nil clock, got %v", err)
	}
}

// --- helpers ---

const fixedNowUnix int64 = 1_750_000_000

func fixedNow() int64 { return fixedNowUnix }

// stubStore keeps postings in memory keyed by tenant and dedupe key, mirroring
// the storage unique constraint.
type stubStore struct {
	postings    map[string]Posting
	insertCount int
	insertRace  bool
	lastFilter  EntryFilter
	listEntries []Entry
}

func newStubStore() *stubStore {
	return &stubStore{postings: make(map[string]Posting)}
}

func dedupeStorageKey(tenantID TenantID, dedupeKey DedupeKey) string {
	return tenantID.String() + "|" + dedupeKey.String()
}

func (s *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, s)
}

func (s *stubStore) InsertPosting(ctx context.Context, posting Posting) error {
	key := dedupeStorageKey(posting.TenantID, posting.DedupeKey)
	if s.insertRace {
		// Simulate a concurrent retry winning the insert between the read and
		// this write.
		s.insertRace = false
		s.postings[key] = posting
		return ErrDuplicatePosting
	}
	if _, exists := s.postings[key]; exists {
		return ErrDuplicatePosting
	}
	s.postings[key] = posting
	s.insertCount++
	return nil
}

func (s *stubStore) GetPostingByDedupeKey(ctx context.Context, tenantID TenantID, dedupeKey DedupeKey) (Posting, error) {
	posting, exists := s.postings[dedupeStorageKey(tenantID, dedupeKey)]
	if !exists {
		return Posting{}, ErrNotFound
	}
	return posting, nil
}

func (s *stubStore) SumAccount(ctx context.Context, tenantID TenantID, accountCode AccountCode, direction Direction, period Period) (int64, error) {
	var total int64
	for _, posting := range s.postings {
		if posting.TenantID != tenantID {
			continue
		}
		for _, leg := range posting.Legs {
			if leg.AccountCode != accountCode || leg.Direction != direction {
				continue
			}
			if leg.OccurredAtUnixUTC < period.StartUnixUTC() || leg.OccurredAtUnixUTC >= period.EndUnixUTC() {
				continue
			}
			total += leg.AmountMinorUnits.Int64()
		}
	}
	return total, nil
}

func (s *stubStore) SourceTotals(ctx context.Context, tenantID TenantID, cashAccount AccountCode, sourceReference string) (SourceTotals, error) {
	var totals SourceTotals
	for _, posting := range s.postings {
		if posting.TenantID != tenantID || posting.SourceReference != sourceReference {
			continue
		}
		for _, leg := range posting.Legs {
			if leg.AccountCode != cashAccount {
				continue
			}
			switch leg.Direction {
			case DirectionDebit:
				totals.CapturedMinorUnits += leg.AmountMinorUnits.Int64()
			case DirectionCredit:
				totals.RefundedMinorUnits += leg.AmountMinorUnits.Int64()
			}
		}
	}
	return totals, nil
}

func (s *stubStore) ListEntries(ctx context.Context, tenantID TenantID, filter EntryFilter) ([]Entry, error) {
	s.lastFilter = filter
	return append([]Entry(nil), s.listEntries...), nil
}

func (s *stubStore) mustPosting(t *testing.T, tenant string, dedupeKey string) Posting {
	t.Helper()
	posting, exists := s.postings[tenant+"|"+dedupeKey]
	if !exists {
		t.Fatalf("posting %s/%s not found", tenant, dedupeKey)
	}
	return posting
}

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(DefaultChart())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}

func mustNewService(t *testing.T, store Store) *Service {
	t.Helper()
	service, err := NewService(store, mustRegistry(t), fixedNow)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func mustTenantID(t *testing.T, raw string) TenantID {
	t.Helper()
	value, err := NewTenantID(raw)
	if err != nil {
		t.Fatalf("tenant id: %v", err)
	}
	return value
}

func mustAccountCode(t *testing.T, raw string) AccountCode {
	t.Helper()
	value, err := NewAccountCode(raw)
	if err != nil {
		t.Fatalf("account code: %v", err)
	}
	return value
}

func mustDedupeKey(t *testing.T, raw string) DedupeKey {
	t.Helper()
	value, err := NewDedupeKey(raw)
	if err != nil {
		t.Fatalf("dedupe key: %v", err)
	}
	return value
}

func mustGroupID(t *testing.T, raw string) PostingGroupID {
	t.Helper()
	value, err := NewPostingGroupID(raw)
	if err != nil {
		t.Fatalf("posting group id: %v", err)
	}
	return value
}

func mustLeg(t *testing.T, code string, direction Direction, amount int64) Leg {
	t.Helper()
	amountValue, err := NewAmountMinorUnits(amount)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	leg, err := NewLeg(mustAccountCode(t, code), direction, amountValue)
	if err != nil {
		t.Fatalf("leg: %v", err)
	}
	return leg
}

func mustPeriod(t *testing.T, start, end int64) Period {
	t.Helper()
	period, err := NewPeriod(start, end)
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	return period
}

// capturePostingInput builds a balanced cash/revenue pair for one payment.
func capturePostingInput(t *testing.T, paymentID string, amount int64) PostingInput {
	t.Helper()
	return PostingInput{
		TenantID:        mustTenantID(t, "tenant-1"),
		PostingGroupID:  mustGroupID(t, "pay_"+paymentID),
		DedupeKey:       mustDedupeKey(t, paymentID+":capture"),
		SourceReference: paymentID,
		Legs: []Leg{
			mustLeg(t, DefaultCashAccountCode, DirectionDebit, amount),
			mustLeg(t, DefaultSiteRevenueAccountCode, DirectionCredit, amount),
		},
	}
}
