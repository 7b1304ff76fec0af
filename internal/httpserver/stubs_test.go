package httpserver

import (
	"context"
	"strconv"

	"github.com/campreserv/core/pkg/inventory"
	"github.com/campreserv/core/pkg/ledger"
	"github.com/campreserv/core/pkg/payments"
)

// memoryLedgerStore implements ledger.Store with the storage unique constraint
// on (tenant, dedupe key).
type memoryLedgerStore struct {
	postings    map[string]ledger.Posting
	insertCount int
}

func newMemoryLedgerStore() *memoryLedgerStore {
	return &memoryLedgerStore{postings: make(map[string]ledger.Posting)}
}

func ledgerDedupeKey(tenantID ledger.TenantID, dedupeKey ledger.DedupeKey) string {
	return tenantID.String() + "|" + dedupeKey.String()
}

func (s *memoryLedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, s)
}

func (s *memoryLedgerStore) InsertPosting(ctx context.Context, posting ledger.Posting) error {
	key := ledgerDedupeKey(posting.TenantID, posting.DedupeKey)
	if _, exists := s.postings[key]; exists {
		return ledger.ErrDuplicatePosting
	}
	s.postings[key] = posting
	s.insertCount++
	return nil
}

func (s *memoryLedgerStore) GetPostingByDedupeKey(ctx context.Context, tenantID ledger.TenantID, dedupeKey ledger.DedupeKey) (ledger.Posting, error) {
	posting, exists := s.postings[ledgerDedupeKey(tenantID, dedupeKey)]
	if !exists {
		return ledger.Posting{}, ledger.ErrNotFound
	}
	return posting, nil
}

func (s *memoryLedgerStore) SumAccount(ctx context.Context, tenantID ledger.TenantID, accountCode ledger.AccountCode, direction ledger.Direction, period ledger.Period) (int64, error) {
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

func (s *memoryLedgerStore) SourceTotals(ctx context.Context, tenantID ledger.TenantID, cashAccount ledger.AccountCode, sourceReference string) (ledger.SourceTotals, error) {
	var totals ledger.SourceTotals
	for _, posting := range s.postings {
		if posting.TenantID != tenantID || posting.SourceReference != sourceReference {
			continue
		}
		for _, leg := range posting.Legs {
			if leg.AccountCode != cashAccount {
				continue
			}
			switch leg.Direction {
			case ledger.DirectionDebit:
				totals.CapturedMinorUnits += leg.AmountMinorUnits.Int64()
			case ledger.DirectionCredit:
				totals.RefundedMinorUnits += leg.AmountMinorUnits.Int64()
			}
		}
	}
	return totals, nil
}

func (s *memoryLedgerStore) ListEntries(ctx context.Context, tenantID ledger.TenantID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	var entries []ledger.Entry
	for _, posting := range s.postings {
		if posting.TenantID != tenantID {
			continue
		}
		entries = append(entries, posting.Legs...)
	}
	return entries, nil
}

// memoryInventoryStore implements inventory.Store with the storage unique
// constraint on (tenant, lock id).
type memoryInventoryStore struct {
	blocks         map[string]inventory.Block
	blocksByLockID map[string]string
	groups         map[string]inventory.Group
	members        map[string][]inventory.GroupMember
}

func newMemoryInventoryStore() *memoryInventoryStore {
	return &memoryInventoryStore{
		blocks:         make(map[string]inventory.Block),
		blocksByLockID: make(map[string]string),
		groups:         make(map[string]inventory.Group),
		members:        make(map[string][]inventory.GroupMember),
	}
}

func (s *memoryInventoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore inventory.Store) error) error {
	return fn(ctx, s)
}

func (s *memoryInventoryStore) LockSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID) error {
	return nil
}

func (s *memoryInventoryStore) GetBlock(ctx context.Context, tenantID inventory.TenantID, blockID inventory.BlockID) (inventory.Block, error) {
	block, exists := s.blocks[blockID.String()]
	if !exists {
		return inventory.Block{}, inventory.ErrNotFound
	}
	return block, nil
}

func (s *memoryInventoryStore) GetBlockByLockID(ctx context.Context, tenantID inventory.TenantID, lockID inventory.LockID) (inventory.Block, error) {
	blockID, exists := s.blocksByLockID[lockID.String()]
	if !exists {
		return inventory.Block{}, inventory.ErrNotFound
	}
	return s.blocks[blockID], nil
}

func (s *memoryInventoryStore) InsertBlock(ctx context.Context, block inventory.Block) error {
	if _, exists := s.blocksByLockID[block.LockID.String()]; exists {
		return inventory.ErrDuplicateLockID
	}
	s.blocks[block.BlockID.String()] = block
	s.blocksByLockID[block.LockID.String()] = block.BlockID.String()
	return nil
}

func (s *memoryInventoryStore) MarkBlockReleased(ctx context.Context, tenantID inventory.TenantID, blockID inventory.BlockID, releasedAtUnixUTC int64) error {
	block, exists := s.blocks[blockID.String()]
	if !exists || block.State != inventory.BlockStateActive {
		return nil
	}
	block.State = inventory.BlockStateReleased
	block.ReleasedUnixUTC = releasedAtUnixUTC
	s.blocks[blockID.String()] = block
	return nil
}

func (s *memoryInventoryStore) BlockedSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID, window inventory.Window) ([]inventory.SiteID, error) {
	blocked := make(map[string]struct{})
	for _, block := range s.blocks {
		if block.State != inventory.BlockStateActive || !block.Window.Overlaps(window) {
			continue
		}
		for _, siteID := range block.SiteIDs {
			blocked[siteID.String()] = struct{}{}
		}
	}
	var hits []inventory.SiteID
	for _, siteID := range siteIDs {
		if _, hit := blocked[siteID.String()]; hit {
			hits = append(hits, siteID)
		}
	}
	return hits, nil
}

func (s *memoryInventoryStore) ReservedSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID, window inventory.Window) ([]inventory.SiteID, error) {
	return nil, nil
}

func (s *memoryInventoryStore) InsertGroup(ctx context.Context, group inventory.Group) error {
	s.groups[group.GroupID.String()] = group
	return nil
}

func (s *memoryInventoryStore) GetGroup(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) (inventory.Group, error) {
	group, exists := s.groups[groupID.String()]
	if !exists {
		return inventory.Group{}, inventory.ErrNotFound
	}
	return group, nil
}

func (s *memoryInventoryStore) LinkReservation(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID, reservationID inventory.ReservationID, role inventory.GroupRole) error {
	for _, member := range s.members[groupID.String()] {
		if member.ReservationID == reservationID {
			return inventory.ErrReservationLinked
		}
	}
	s.members[groupID.String()] = append(s.members[groupID.String()], inventory.GroupMember{
		ReservationID: reservationID,
		Role:          role,
	})
	return nil
}

func (s *memoryInventoryStore) UnlinkReservation(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID, reservationID inventory.ReservationID) error {
	members := s.members[groupID.String()]
	for index, member := range members {
		if member.ReservationID == reservationID {
			s.members[groupID.String()] = append(members[:index], members[index+1:]...)
			return nil
		}
	}
	return inventory.ErrNotFound
}

func (s *memoryInventoryStore) UnlinkAllReservations(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) error {
	delete(s.members, groupID.String())
	return nil
}

func (s *memoryInventoryStore) ListGroupMembers(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) ([]inventory.GroupMember, error) {
	return append([]inventory.GroupMember(nil), s.members[groupID.String()]...), nil
}

func (s *memoryInventoryStore) DeleteGroup(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) error {
	delete(s.groups, groupID.String())
	return nil
}

// passLocker satisfies inventory.SiteLocker without real locking.
type passLocker struct{}

func (passLocker) LockSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID) (inventory.UnlockFunc, error) {
	return func(context.Context) {}, nil
}

// stubPaymentsClient satisfies payments.Client with canned responses.
type stubPaymentsClient struct {
	refundSequence int
	payouts        []payments.Payout
}

func (client *stubPaymentsClient) CreateCharge(ctx context.Context, request payments.ChargeRequest) (payments.Charge, error) {
	return payments.Charge{ChargeID: "ch_stub", Status: "succeeded", AmountMinorUnits: request.AmountMinorUnits}, nil
}

func (client *stubPaymentsClient) CreateRefund(ctx context.Context, request payments.RefundRequest) (payments.Refund, error) {
	client.refundSequence++
	return payments.Refund{
		RefundID:         "re_stub_" + strconv.Itoa(client.refundSequence),
		Status:           "succeeded",
		AmountMinorUnits: request.AmountMinorUnits,
	}, nil
}

func (client *stubPaymentsClient) ListPayouts(ctx context.Context, tenantID string, fromUnixUTC, toUnixUTC int64) ([]payments.Payout, error) {
	return append([]payments.Payout(nil), client.payouts...), nil
}
