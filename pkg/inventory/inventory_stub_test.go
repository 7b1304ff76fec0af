package inventory

import (
	"context"
	"fmt"
	"testing"
)

const stubNowUnix int64 = 1_750_000_000

// stubInventoryStore keeps blocks, reservations, and groups in memory,
// mirroring the storage unique constraints.
type stubInventoryStore struct {
	blocks            map[string]Block
	blocksByLockID    map[string]string
	reservations      []stubReservation
	groups            map[string]Group
	members           map[string][]GroupMember
	insertRace        bool
	nextID            int
	markReleasedCalls int
}

type stubReservation struct {
	siteID string
	window Window
}

func newStubInventoryStore() *stubInventoryStore {
	return &stubInventoryStore{
		blocks:         make(map[string]Block),
		blocksByLockID: make(map[string]string),
		groups:         make(map[string]Group),
		members:        make(map[string][]GroupMember),
	}
}

func (s *stubInventoryStore) addReservation(siteID string, startUnixUTC, endUnixUTC int64) {
	s.reservations = append(s.reservations, stubReservation{
		siteID: siteID,
		window: Window{startUnixUTC: startUnixUTC, endUnixUTC: endUnixUTC},
	})
}

func (s *stubInventoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, s)
}

func (s *stubInventoryStore) LockSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID) error {
	return nil
}

func (s *stubInventoryStore) GetBlock(ctx context.Context, tenantID TenantID, blockID BlockID) (Block, error) {
	block, exists := s.blocks[blockID.String()]
	if !exists {
		return Block{}, ErrNotFound
	}
	return block, nil
}

func (s *stubInventoryStore) GetBlockByLockID(ctx context.Context, tenantID TenantID, lockID LockID) (Block, error) {
	blockID, exists := s.blocksByLockID[lockID.String()]
	if !exists {
		return Block{}, ErrNotFound
	}
	return s.blocks[blockID], nil
}

func (s *stubInventoryStore) InsertBlock(ctx context.Context, block Block) error {
	lockKey := block.LockID.String()
	if s.insertRace {
		// Simulate a concurrent retry winning the insert between the read and
		// this write.
		s.insertRace = false
		s.blocks[block.BlockID.String()] = block
		s.blocksByLockID[lockKey] = block.BlockID.String()
		return ErrDuplicateLockID
	}
	if _, exists := s.blocksByLockID[lockKey]; exists {
		return ErrDuplicateLockID
	}
	s.blocks[block.BlockID.String()] = block
	s.blocksByLockID[lockKey] = block.BlockID.String()
	return nil
}

func (s *stubInventoryStore) MarkBlockReleased(ctx context.Context, tenantID TenantID, blockID BlockID, releasedAtUnixUTC int64) error {
	block, exists := s.blocks[blockID.String()]
	if !exists || block.State != BlockStateActive {
		return nil
	}
	block.State = BlockStateReleased
	block.ReleasedUnixUTC = releasedAtUnixUTC
	s.blocks[blockID.String()] = block
	s.markReleasedCalls++
	return nil
}

func (s *stubInventoryStore) BlockedSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID, window Window) ([]SiteID, error) {
	requested := siteSet(siteIDs)
	hits := make(map[string]struct{})
	for _, block := range s.blocks {
		if block.State != BlockStateActive || !block.Window.Overlaps(window) {
			continue
		}
		for _, siteID := range block.SiteIDs {
			if _, wanted := requested[siteID.String()]; wanted {
				hits[siteID.String()] = struct{}{}
			}
		}
	}
	return collectSiteIDs(siteIDs, hits), nil
}

func (s *stubInventoryStore) ReservedSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID, window Window) ([]SiteID, error) {
	requested := siteSet(siteIDs)
	hits := make(map[string]struct{})
	for _, reservation := range s.reservations {
		if !reservation.window.Overlaps(window) {
			continue
		}
		if _, wanted := requested[reservation.siteID]; wanted {
			hits[reservation.siteID] = struct{}{}
		}
	}
	return collectSiteIDs(siteIDs, hits), nil
}

func (s *stubInventoryStore) InsertGroup(ctx context.Context, group Group) error {
	s.groups[group.GroupID.String()] = group
	return nil
}

func (s *stubInventoryStore) GetGroup(ctx context.Context, tenantID TenantID, groupID GroupID) (Group, error) {
	group, exists := s.groups[groupID.String()]
	if !exists {
		return Group{}, ErrNotFound
	}
	return group, nil
}

func (s *stubInventoryStore) LinkReservation(ctx context.Context, tenantID TenantID, groupID GroupID, reservationID ReservationID, role GroupRole) error {
	for _, member := range s.members[groupID.String()] {
		if member.ReservationID == reservationID {
			return ErrReservationLinked
		}
	}
	s.members[groupID.String()] = append(s.members[groupID.String()], GroupMember{
		ReservationID: reservationID,
		Role:          role,
	})
	return nil
}

func (s *stubInventoryStore) UnlinkReservation(ctx context.Context, tenantID TenantID, groupID GroupID, reservationID ReservationID) error {
	members := s.members[groupID.String()]
	for index, member := range members {
		if member.ReservationID == reservationID {
			s.members[groupID.String()] = append(members[:index], members[index+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *stubInventoryStore) UnlinkAllReservations(ctx context.Context, tenantID TenantID, groupID GroupID) error {
	delete(s.members, groupID.String())
	return nil
}

func (s *stubInventoryStore) ListGroupMembers(ctx context.Context, tenantID TenantID, groupID GroupID) ([]GroupMember, error) {
	return append([]GroupMember(nil), s.members[groupID.String()]...), nil
}

func (s *stubInventoryStore) DeleteGroup(ctx context.Context, tenantID TenantID, groupID GroupID) error {
	delete(s.groups, groupID.String())
	return nil
}

func collectSiteIDs(ordered []SiteID, hits map[string]struct{}) []SiteID {
	result := make([]SiteID, 0, len(hits))
	for _, siteID := range ordered {
		if _, hit := hits[siteID.String()]; hit {
			result = append(result, siteID)
		}
	}
	return result
}

// noopLocker satisfies SiteLocker for single-goroutine tests.
type noopLocker struct{}

func (noopLocker) LockSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID) (UnlockFunc, error) {
	return func(context.Context) {}, nil
}

// captureLogger records operation logs for assertions.
type captureLogger struct {
	entries []OperationLog
}

func (logger *captureLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func (logger *captureLogger) last() OperationLog {
	if len(logger.entries) == 0 {
		return OperationLog{}
	}
	return logger.entries[len(logger.entries)-1]
}

// --- must helpers ---

func mustNewManager(t *testing.T, store *stubInventoryStore) *Manager {
	t.Helper()
	return mustNewManagerWithLogger(t, store, nil)
}

func mustNewManagerWithLogger(t *testing.T, store *stubInventoryStore, logger OperationLogger) *Manager {
	t.Helper()
	options := []ManagerOption{}
	if logger != nil {
		options = append(options, WithOperationLogger(logger))
	}
	manager, err := NewManager(store, noopLocker{}, func() int64 { return stubNowUnix }, store.generateID, options...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func (s *stubInventoryStore) generateID() string {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID)
}

func mustNewCoordinator(t *testing.T, store *stubInventoryStore) *Coordinator {
	t.Helper()
	coordinator, err := NewCoordinator(store, func() int64 { return stubNowUnix }, store.generateID)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return coordinator
}

func mustInventoryTenantID(t *testing.T, raw string) TenantID {
	t.Helper()
	value, err := NewTenantID(raw)
	if err != nil {
		t.Fatalf("tenant id: %v", err)
	}
	return value
}

func mustSiteID(t *testing.T, raw string) SiteID {
	t.Helper()
	value, err := NewSiteID(raw)
	if err != nil {
		t.Fatalf("site id: %v", err)
	}
	return value
}

func mustBlockID(t *testing.T, raw string) BlockID {
	t.Helper()
	value, err := NewBlockID(raw)
	if err != nil {
		t.Fatalf("block id: %v", err)
	}
	return value
}

func mustLockID(t *testing.T, raw string) LockID {
	t.Helper()
	value, err := NewLockID(raw)
	if err != nil {
		t.Fatalf("lock id: %v", err)
	}
	return value
}

func mustInventoryGroupID(t *testing.T, raw string) GroupID {
	t.Helper()
	value, err := NewGroupID(raw)
	if err != nil {
		t.Fatalf("group id: %v", err)
	}
	return value
}

func mustReservationID(t *testing.T, raw string) ReservationID {
	t.Helper()
	value, err := NewReservationID(raw)
	if err != nil {
		t.Fatalf("reservation id: %v", err)
	}
	return value
}

func mustWindow(t *testing.T, startUnixUTC, endUnixUTC int64) Window {
	t.Helper()
	window, err := NewWindow(startUnixUTC, endUnixUTC)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return window
}

func blockInput(t *testing.T, lockID string, sites []string, startUnixUTC, endUnixUTC int64) BlockInput {
	t.Helper()
	siteIDs := make([]SiteID, 0, len(sites))
	for _, site := range sites {
		siteIDs = append(siteIDs, mustSiteID(t, site))
	}
	return BlockInput{
		TenantID:  mustInventoryTenantID(t, "tenant-1"),
		SiteIDs:   siteIDs,
		Window:    mustWindow(t, startUnixUTC, endUnixUTC),
		Reason:    BlockReasonMaintenance,
		LockID:    mustLockID(t, lockID),
		CreatedBy: "ops@example.com",
	}
}
