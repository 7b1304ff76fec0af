package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/campreserv/core/pkg/inventory"
	"gorm.io/gorm"
)

// InventoryStore implements inventory.Store using GORM.
type InventoryStore struct {
	db *gorm.DB
}

// NewInventoryStore returns an InventoryStore backed by gorm.DB.
func NewInventoryStore(db *gorm.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *InventoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore inventory.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &InventoryStore{db: transaction})
	})
}

// LockSites is a no-op here: the SiteLocker in front of the manager already
// serializes the critical section. The pgstore variant takes advisory locks.
func (store *InventoryStore) LockSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID) error {
	return nil
}

// GetBlock loads one block with its site set.
func (store *InventoryStore) GetBlock(ctx context.Context, tenantID inventory.TenantID, blockID inventory.BlockID) (inventory.Block, error) {
	var row Block
	err := store.db.WithContext(ctx).
		Where("tenant_id = ? AND block_id = ?", tenantID.String(), blockID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, inventory.ErrNotFound)
	}
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, err)
	}
	return store.loadBlock(ctx, row)
}

// GetBlockByLockID loads the block committed under a lock id, if any.
func (store *InventoryStore) GetBlockByLockID(ctx context.Context, tenantID inventory.TenantID, lockID inventory.LockID) (inventory.Block, error) {
	var row Block
	err := store.db.WithContext(ctx).
		Where("tenant_id = ? AND lock_id = ?", tenantID.String(), lockID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, inventory.ErrNotFound)
	}
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, err)
	}
	return store.loadBlock(ctx, row)
}

// InsertBlock writes the block row and one row per site. A lock-id collision
// surfaces as inventory.ErrDuplicateLockID.
func (store *InventoryStore) InsertBlock(ctx context.Context, block inventory.Block) error {
	row := Block{
		BlockID:     block.BlockID.String(),
		TenantID:    block.TenantID.String(),
		LockID:      block.LockID.String(),
		WindowStart: time.Unix(block.Window.StartUnixUTC(), 0).UTC(),
		WindowEnd:   time.Unix(block.Window.EndUnixUTC(), 0).UTC(),
		Reason:      block.Reason.String(),
		State:       block.State.String(),
		CreatedBy:   block.CreatedBy,
		CreatedAt:   time.Unix(block.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, constraintBlockLock) {
		return wrapInventoryError(errorSubjectBlock, errorCodeDuplicate, inventory.ErrDuplicateLockID)
	}
	if err != nil {
		return wrapInventoryError(errorSubjectBlock, errorCodeInsert, err)
	}

	sites := make([]BlockSite, 0, len(block.SiteIDs))
	for _, siteID := range block.SiteIDs {
		sites = append(sites, BlockSite{BlockID: block.BlockID.String(), SiteID: siteID.String()})
	}
	if err := store.db.WithContext(ctx).Create(&sites).Error; err != nil {
		return wrapInventoryError(errorSubjectBlock, errorCodeInsert, err)
	}
	return nil
}

// MarkBlockReleased flips an active block to released. Zero rows affected
// means another worker released it first, which is fine.
func (store *InventoryStore) MarkBlockReleased(ctx context.Context, tenantID inventory.TenantID, blockID inventory.BlockID, releasedAtUnixUTC int64) error {
	releasedAt := time.Unix(releasedAtUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Block{}).
		Where("tenant_id = ? AND block_id = ? AND state = ?", tenantID.String(), blockID.String(), inventory.BlockStateActive.String()).
		Updates(map[string]interface{}{"state": inventory.BlockStateReleased.String(), "released_at": &releasedAt})
	if result.Error != nil {
		return wrapInventoryError(errorSubjectBlock, errorCodeUpdate, result.Error)
	}
	return nil
}

// BlockedSites returns the subset of siteIDs held by an active block
// overlapping the half-open window.
func (store *InventoryStore) BlockedSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID, window inventory.Window) ([]inventory.SiteID, error) {
	var values []string
	err := store.db.WithContext(ctx).
		Model(&BlockSite{}).
		Distinct().
		Joins("JOIN blocks ON blocks.block_id = block_sites.block_id").
		Where("blocks.tenant_id = ? AND blocks.state = ?", tenantID.String(), inventory.BlockStateActive.String()).
		Where("block_sites.site_id IN ?", rawSiteIDs(siteIDs)).
		Where("blocks.window_start < ? AND blocks.window_end > ?",
			time.Unix(window.EndUnixUTC(), 0).UTC(), time.Unix(window.StartUnixUTC(), 0).UTC()).
		Order("block_sites.site_id").
		Pluck("block_sites.site_id", &values).Error
	if err != nil {
		return nil, wrapInventoryError(errorSubjectBlock, errorCodeOverlapLookup, err)
	}
	return mapSiteIDs(values)
}

// ReservedSites returns the subset of siteIDs taken by a confirmed
// reservation overlapping the half-open window.
func (store *InventoryStore) ReservedSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID, window inventory.Window) ([]inventory.SiteID, error) {
	var values []string
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Distinct().
		Where("tenant_id = ? AND status = ?", tenantID.String(), reservationStatusConfirmed).
		Where("site_id IN ?", rawSiteIDs(siteIDs)).
		Where("arrival_at < ? AND departure_at > ?",
			time.Unix(window.EndUnixUTC(), 0).UTC(), time.Unix(window.StartUnixUTC(), 0).UTC()).
		Order("site_id").
		Pluck("site_id", &values).Error
	if err != nil {
		return nil, wrapInventoryError(errorSubjectBlock, errorCodeOverlapLookup, err)
	}
	return mapSiteIDs(values)
}

// InsertGroup writes a group row.
func (store *InventoryStore) InsertGroup(ctx context.Context, group inventory.Group) error {
	row := Group{
		GroupID:       group.GroupID.String(),
		TenantID:      group.TenantID.String(),
		SharedPayment: group.SharedPayment,
		SharedComm:    group.SharedComm,
		CreatedAt:     time.Unix(group.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapInventoryError(errorSubjectGroup, errorCodeInsert, err)
	}
	return nil
}

// GetGroup loads one group.
func (store *InventoryStore) GetGroup(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) (inventory.Group, error) {
	var row Group
	err := store.db.WithContext(ctx).
		Where("tenant_id = ? AND group_id = ?", tenantID.String(), groupID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.Group{}, wrapInventoryError(errorSubjectGroup, errorCodeGet, inventory.ErrNotFound)
	}
	if err != nil {
		return inventory.Group{}, wrapInventoryError(errorSubjectGroup, errorCodeGet, err)
	}
	return mapGroup(row)
}

// LinkReservation attaches a reservation to a group. A reservation already
// linked anywhere surfaces as inventory.ErrReservationLinked.
func (store *InventoryStore) LinkReservation(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID, reservationID inventory.ReservationID, role inventory.GroupRole) error {
	row := GroupReservation{
		GroupID:       groupID.String(),
		ReservationID: reservationID.String(),
		TenantID:      tenantID.String(),
		Role:          role.String(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, constraintGroupReservation) {
		return wrapInventoryError(errorSubjectMember, errorCodeDuplicate, inventory.ErrReservationLinked)
	}
	if err != nil {
		return wrapInventoryError(errorSubjectMember, errorCodeInsert, err)
	}
	return nil
}

// UnlinkReservation detaches a reservation from a group.
func (store *InventoryStore) UnlinkReservation(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID, reservationID inventory.ReservationID) error {
	result := store.db.WithContext(ctx).
		Where("tenant_id = ? AND group_id = ? AND reservation_id = ?", tenantID.String(), groupID.String(), reservationID.String()).
		Delete(&GroupReservation{})
	if result.Error != nil {
		return wrapInventoryError(errorSubjectMember, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapInventoryError(errorSubjectMember, errorCodeDelete, inventory.ErrNotFound)
	}
	return nil
}

// UnlinkAllReservations detaches every member of a group.
func (store *InventoryStore) UnlinkAllReservations(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) error {
	err := store.db.WithContext(ctx).
		Where("tenant_id = ? AND group_id = ?", tenantID.String(), groupID.String()).
		Delete(&GroupReservation{}).Error
	if err != nil {
		return wrapInventoryError(errorSubjectMember, errorCodeDelete, err)
	}
	return nil
}

// ListGroupMembers returns the group's members ordered by reservation id.
func (store *InventoryStore) ListGroupMembers(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) ([]inventory.GroupMember, error) {
	var rows []GroupReservation
	err := store.db.WithContext(ctx).
		Where("tenant_id = ? AND group_id = ?", tenantID.String(), groupID.String()).
		Order("reservation_id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapInventoryError(errorSubjectMember, errorCodeList, err)
	}
	members := make([]inventory.GroupMember, 0, len(rows))
	for _, row := range rows {
		member, err := mapGroupMember(row)
		if err != nil {
			return nil, wrapInventoryError(errorSubjectMember, errorCodeInvalid, err)
		}
		members = append(members, member)
	}
	return members, nil
}

// DeleteGroup removes the group row. Deleting an already-deleted group is a
// no-op; the coordinator checks existence first inside the transaction.
func (store *InventoryStore) DeleteGroup(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) error {
	err := store.db.WithContext(ctx).
		Where("tenant_id = ? AND group_id = ?", tenantID.String(), groupID.String()).
		Delete(&Group{}).Error
	if err != nil {
		return wrapInventoryError(errorSubjectGroup, errorCodeDelete, err)
	}
	return nil
}

func (store *InventoryStore) loadBlock(ctx context.Context, row Block) (inventory.Block, error) {
	var siteRows []BlockSite
	err := store.db.WithContext(ctx).
		Where("block_id = ?", row.BlockID).
		Order("site_id").
		Find(&siteRows).Error
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, err)
	}
	block, err := mapBlock(row, siteRows)
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
	}
	return block, nil
}

func wrapInventoryError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}

func rawSiteIDs(siteIDs []inventory.SiteID) []string {
	values := make([]string, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		values = append(values, siteID.String())
	}
	return values
}

func mapSiteIDs(values []string) ([]inventory.SiteID, error) {
	siteIDs := make([]inventory.SiteID, 0, len(values))
	for _, value := range values {
		siteID, err := inventory.NewSiteID(value)
		if err != nil {
			return nil, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
		}
		siteIDs = append(siteIDs, siteID)
	}
	return siteIDs, nil
}

func mapBlock(row Block, siteRows []BlockSite) (inventory.Block, error) {
	blockID, err := inventory.NewBlockID(row.BlockID)
	if err != nil {
		return inventory.Block{}, err
	}
	tenantID, err := inventory.NewTenantID(row.TenantID)
	if err != nil {
		return inventory.Block{}, err
	}
	lockID, err := inventory.NewLockID(row.LockID)
	if err != nil {
		return inventory.Block{}, err
	}
	window, err := inventory.NewWindow(row.WindowStart.Unix(), row.WindowEnd.Unix())
	if err != nil {
		return inventory.Block{}, err
	}
	reason, err := inventory.ParseBlockReason(row.Reason)
	if err != nil {
		return inventory.Block{}, err
	}
	siteIDs := make([]inventory.SiteID, 0, len(siteRows))
	for _, siteRow := range siteRows {
		siteID, err := inventory.NewSiteID(siteRow.SiteID)
		if err != nil {
			return inventory.Block{}, err
		}
		siteIDs = append(siteIDs, siteID)
	}
	var releasedAtUnixUTC int64
	if row.ReleasedAt != nil {
		releasedAtUnixUTC = row.ReleasedAt.Unix()
	}
	return inventory.Block{
		BlockID:         blockID,
		TenantID:        tenantID,
		LockID:          lockID,
		SiteIDs:         siteIDs,
		Window:          window,
		Reason:          reason,
		State:           inventory.BlockState(row.State),
		CreatedBy:       row.CreatedBy,
		CreatedUnixUTC:  row.CreatedAt.Unix(),
		ReleasedUnixUTC: releasedAtUnixUTC,
	}, nil
}

func mapGroup(row Group) (inventory.Group, error) {
	groupID, err := inventory.NewGroupID(row.GroupID)
	if err != nil {
		return inventory.Group{}, err
	}
	tenantID, err := inventory.NewTenantID(row.TenantID)
	if err != nil {
		return inventory.Group{}, err
	}
	return inventory.Group{
		GroupID:        groupID,
		TenantID:       tenantID,
		SharedPayment:  row.SharedPayment,
		SharedComm:     row.SharedComm,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapGroupMember(row GroupReservation) (inventory.GroupMember, error) {
	reservationID, err := inventory.NewReservationID(row.ReservationID)
	if err != nil {
		return inventory.GroupMember{}, err
	}
	role, err := inventory.ParseGroupRole(row.Role)
	if err != nil {
		return inventory.GroupMember{}, err
	}
	return inventory.GroupMember{ReservationID: reservationID, Role: role}, nil
}
