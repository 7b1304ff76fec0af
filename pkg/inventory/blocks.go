package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Manager creates and releases time-windowed exclusive holds over sites.
// Conflict checking and insertion run inside one transaction, serialized per
// affected site by the SiteLocker plus whatever in-transaction locking the
// store provides.
type Manager struct {
	store  Store
	locker SiteLocker
	nowFn  func() int64
	newID  func() string
	logger OperationLogger
}

// NewManager wires a Manager.
func NewManager(store Store, locker SiteLocker, now func() int64, newID func() string, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if locker == nil {
		return nil, fmt.Errorf("%w: site locker dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if newID == nil {
		return nil, fmt.Errorf("%w: id generator dependency is nil", ErrInvalidServiceConfig)
	}
	manager := &Manager{store: store, locker: locker, nowFn: now, newID: newID}
	for _, option := range options {
		if option != nil {
			option(manager)
		}
	}
	return manager, nil
}

// CreateBlock acquires an exclusive hold over every requested site for the
// window, all-or-nothing. A repeated call with the same lock id and identical
// parameters returns the existing block; reusing a lock id with different
// parameters is a conflict.
func (manager *Manager) CreateBlock(ctx context.Context, input BlockInput) (Block, error) {
	block, replayed, operationError := manager.createBlock(ctx, input)
	manager.logOperation(ctx, OperationLog{
		Operation: operationCreateBlock,
		TenantID:  input.TenantID,
		BlockID:   block.BlockID,
		LockID:    input.LockID,
		SiteCount: len(input.SiteIDs),
		Replayed:  replayed,
		Error:     operationError,
	})
	return block, operationError
}

func (manager *Manager) createBlock(ctx context.Context, input BlockInput) (Block, bool, error) {
	sites, err := manager.validateBlockInput(input)
	if err != nil {
		return Block{}, false, err
	}

	unlock, err := manager.locker.LockSites(ctx, input.TenantID, sites)
	if err != nil {
		return Block{}, false, WrapError(operationCreateBlock, "sites", "lock", err)
	}
	defer unlock(ctx)

	var (
		result   Block
		replayed bool
	)
	operationError := manager.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := transactionStore.LockSites(ctx, input.TenantID, sites); err != nil {
			return err
		}
		existing, err := transactionStore.GetBlockByLockID(ctx, input.TenantID, input.LockID)
		if err == nil {
			if !blockMatchesInput(existing, input, sites) {
				return WrapError(operationCreateBlock, "lock_id", "lock_reused", ErrBlockConflict)
			}
			result = existing
			replayed = true
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		blocked, err := transactionStore.BlockedSites(ctx, input.TenantID, sites, input.Window)
		if err != nil {
			return err
		}
		if len(blocked) > 0 {
			return overlapError(conflictSourceBlock, blocked)
		}
		reserved, err := transactionStore.ReservedSites(ctx, input.TenantID, sites, input.Window)
		if err != nil {
			return err
		}
		if len(reserved) > 0 {
			return overlapError(conflictSourceReservation, reserved)
		}
		block := Block{
			BlockID:        BlockID{value: manager.newID()},
			TenantID:       input.TenantID,
			LockID:         input.LockID,
			SiteIDs:        sites,
			Window:         input.Window,
			Reason:         input.Reason,
			State:          BlockStateActive,
			CreatedBy:      input.CreatedBy,
			CreatedUnixUTC: manager.nowFn(),
		}
		if err := transactionStore.InsertBlock(ctx, block); err != nil {
			return err
		}
		result = block
		return nil
	})
	if errors.Is(operationError, ErrDuplicateLockID) {
		// A concurrent retry with the same lock id won the insert race.
		existing, readErr := manager.store.GetBlockByLockID(ctx, input.TenantID, input.LockID)
		if readErr != nil {
			return Block{}, false, readErr
		}
		if !blockMatchesInput(existing, input, sites) {
			return Block{}, false, WrapError(operationCreateBlock, "lock_id", "lock_reused", ErrBlockConflict)
		}
		return existing, true, nil
	}
	if operationError != nil {
		return Block{}, false, operationError
	}
	return result, replayed, nil
}

// ReleaseBlock transitions a block to released. Releasing an already-released
// block is a no-op; the block record stays for audit.
func (manager *Manager) ReleaseBlock(ctx context.Context, tenantID TenantID, blockID BlockID) (Block, error) {
	var result Block
	operationError := manager.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		block, err := transactionStore.GetBlock(ctx, tenantID, blockID)
		if err != nil {
			return err
		}
		if block.State == BlockStateReleased {
			result = block
			return nil
		}
		releasedAt := manager.nowFn()
		if err := transactionStore.MarkBlockReleased(ctx, tenantID, blockID, releasedAt); err != nil {
			return err
		}
		block.State = BlockStateReleased
		block.ReleasedUnixUTC = releasedAt
		result = block
		return nil
	})
	manager.logOperation(ctx, OperationLog{
		Operation: operationReleaseBlock,
		TenantID:  tenantID,
		BlockID:   blockID,
		Error:     operationError,
	})
	if operationError != nil {
		return Block{}, operationError
	}
	return result, nil
}

// SiteAvailability reports, per requested site, whether the window is free of
// active blocks and confirmed reservations. Read-only; a booking flow still
// has to acquire a hold to claim the dates.
func (manager *Manager) SiteAvailability(ctx context.Context, tenantID TenantID, siteIDs []SiteID, window Window) ([]SiteAvailability, error) {
	availability, operationError := manager.siteAvailability(ctx, tenantID, siteIDs, window)
	manager.logOperation(ctx, OperationLog{
		Operation: operationAvailability,
		TenantID:  tenantID,
		SiteCount: len(availability),
		Error:     operationError,
	})
	return availability, operationError
}

func (manager *Manager) siteAvailability(ctx context.Context, tenantID TenantID, siteIDs []SiteID, window Window) ([]SiteAvailability, error) {
	if tenantID.value == "" {
		return nil, fmt.Errorf("%w: tenant id required", ErrInvalidTenantID)
	}
	sites := normalizeSiteIDs(siteIDs)
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: at least one site required", ErrInvalidSiteID)
	}
	if window.startUnixUTC >= window.endUnixUTC {
		return nil, fmt.Errorf("%w: start must precede end", ErrInvalidWindow)
	}
	blocked, err := manager.store.BlockedSites(ctx, tenantID, sites, window)
	if err != nil {
		return nil, err
	}
	reserved, err := manager.store.ReservedSites(ctx, tenantID, sites, window)
	if err != nil {
		return nil, err
	}
	blockedSet := siteSet(blocked)
	reservedSet := siteSet(reserved)
	availability := make([]SiteAvailability, 0, len(sites))
	for _, siteID := range sites {
		entry := SiteAvailability{SiteID: siteID, Available: true}
		if _, hit := blockedSet[siteID.value]; hit {
			entry.Available = false
			entry.Conflict = conflictSourceBlock
		} else if _, hit := reservedSet[siteID.value]; hit {
			entry.Available = false
			entry.Conflict = conflictSourceReservation
		}
		availability = append(availability, entry)
	}
	return availability, nil
}

func (manager *Manager) validateBlockInput(input BlockInput) ([]SiteID, error) {
	if input.TenantID.value == "" {
		return nil, fmt.Errorf("%w: tenant id required", ErrInvalidTenantID)
	}
	sites := normalizeSiteIDs(input.SiteIDs)
	if len(sites) == 0 {
		return nil, fmt.Errorf("%w: at least one site required", ErrInvalidSiteID)
	}
	if input.Window.startUnixUTC >= input.Window.endUnixUTC {
		return nil, fmt.Errorf("%w: start must precede end", ErrInvalidWindow)
	}
	if _, err := ParseBlockReason(input.Reason.String()); err != nil {
		return nil, err
	}
	if input.LockID.value == "" {
		return nil, fmt.Errorf("%w: lock id required", ErrInvalidLockID)
	}
	return sites, nil
}

func (manager *Manager) logOperation(ctx context.Context, entry OperationLog) {
	if manager.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	manager.logger.LogOperation(ctx, entry)
}

func blockMatchesInput(existing Block, input BlockInput, sites []SiteID) bool {
	return existing.Window == input.Window &&
		existing.Reason == input.Reason &&
		existing.CreatedBy == input.CreatedBy &&
		sameSiteIDs(existing.SiteIDs, sites)
}

func overlapError(source string, sites []SiteID) error {
	return WrapError(operationCreateBlock, source, "overlap",
		fmt.Errorf("%w: sites %s", ErrBlockConflict, joinSiteIDs(sites)))
}

func joinSiteIDs(sites []SiteID) string {
	values := make([]string, 0, len(sites))
	for _, siteID := range sites {
		values = append(values, siteID.value)
	}
	return strings.Join(values, ",")
}

func siteSet(sites []SiteID) map[string]struct{} {
	set := make(map[string]struct{}, len(sites))
	for _, siteID := range sites {
		set[siteID.value] = struct{}{}
	}
	return set
}
