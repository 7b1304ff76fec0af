package pgstore

import (
	"context"
	"errors"

	"github.com/campreserv/core/pkg/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// Advisory locks are transaction scoped and release on commit or
	// rollback, so LockSites is only meaningful inside WithTx.
	sqlAdvisorySiteLock = `select pg_advisory_xact_lock(hashtext($1))`

	sqlInsertBlock = `
		insert into blocks(
			block_id, tenant_id, lock_id, window_start, window_end,
			reason, state, created_by, created_at
		)
		values($1, $2, $3, to_timestamp($4), to_timestamp($5), $6, $7, $8, to_timestamp($9))
	`

	sqlInsertBlockSite = `
		insert into block_sites(block_id, site_id) values($1, $2)
	`

	sqlSelectBlock = `
		select
			block_id, tenant_id, lock_id,
			extract(epoch from window_start)::bigint,
			extract(epoch from window_end)::bigint,
			reason, state, coalesce(created_by,''),
			extract(epoch from created_at)::bigint,
			coalesce(extract(epoch from released_at)::bigint, 0)
		from blocks
		where tenant_id = $1 and block_id = $2
	`

	sqlSelectBlockByLockID = `
		select
			block_id, tenant_id, lock_id,
			extract(epoch from window_start)::bigint,
			extract(epoch from window_end)::bigint,
			reason, state, coalesce(created_by,''),
			extract(epoch from created_at)::bigint,
			coalesce(extract(epoch from released_at)::bigint, 0)
		from blocks
		where tenant_id = $1 and lock_id = $2
	`

	sqlSelectBlockSites = `
		select site_id from block_sites where block_id = $1 order by site_id
	`

	sqlMarkBlockReleased = `
		update blocks
		set state = 'released', released_at = to_timestamp($3)
		where tenant_id = $1 and block_id = $2 and state = 'active'
	`

	sqlBlockedSites = `
		select distinct block_sites.site_id
		from block_sites
		join blocks on blocks.block_id = block_sites.block_id
		where blocks.tenant_id = $1 and blocks.state = 'active'
		and block_sites.site_id = any($2)
		and blocks.window_start < to_timestamp($3) and blocks.window_end > to_timestamp($4)
		order by block_sites.site_id
	`

	sqlReservedSites = `
		select distinct site_id
		from reservations
		where tenant_id = $1 and status = 'confirmed'
		and site_id = any($2)
		and arrival_at < to_timestamp($3) and departure_at > to_timestamp($4)
		order by site_id
	`

	sqlInsertGroup = `
		insert into groups(group_id, tenant_id, shared_payment, shared_comm, created_at)
		values($1, $2, $3, $4, to_timestamp($5))
	`

	sqlSelectGroup = `
		select group_id, tenant_id, shared_payment, shared_comm, extract(epoch from created_at)::bigint
		from groups
		where tenant_id = $1 and group_id = $2
	`

	sqlInsertGroupReservation = `
		insert into group_reservations(group_id, reservation_id, tenant_id, role)
		values($1, $2, $3, $4)
	`

	sqlDeleteGroupReservation = `
		delete from group_reservations
		where tenant_id = $1 and group_id = $2 and reservation_id = $3
	`

	sqlDeleteAllGroupReservations = `
		delete from group_reservations where tenant_id = $1 and group_id = $2
	`

	sqlSelectGroupMembers = `
		select reservation_id, role
		from group_reservations
		where tenant_id = $1 and group_id = $2
		order by reservation_id
	`

	sqlDeleteGroup = `
		delete from groups where tenant_id = $1 and group_id = $2
	`
)

// InventoryStore implements inventory.Store over a pgx pool (autocommit).
type InventoryStore struct {
	pool *pgxpool.Pool
	inventoryQueries
}

// NewInventoryStore returns an InventoryStore backed by a pgx pool.
func NewInventoryStore(pool *pgxpool.Pool) *InventoryStore {
	return &InventoryStore{pool: pool, inventoryQueries: inventoryQueries{db: pool}}
}

// WithTx executes fn within a transaction.
func (store *InventoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore inventory.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapInventoryError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &inventoryTxStore{inventoryQueries: inventoryQueries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapInventoryError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// inventoryTxStore implements inventory.Store for an active transaction.
type inventoryTxStore struct {
	inventoryQueries
}

// WithTx runs fn on the already-open transaction.
func (store *inventoryTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore inventory.Store) error) error {
	return fn(ctx, store)
}

// inventoryQueries holds the statements shared between the pool-backed store
// and the transaction-backed one.
type inventoryQueries struct {
	db querier
}

// LockSites takes one advisory lock per tenant/site pair, in the order given,
// serializing conflict-check-and-insert across every worker on this database.
func (queries inventoryQueries) LockSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID) error {
	for _, siteID := range siteIDs {
		key := tenantID.String() + "/" + siteID.String()
		if _, err := queries.db.Exec(ctx, sqlAdvisorySiteLock, key); err != nil {
			return wrapInventoryError(errorSubjectBlock, errorCodeLock, err)
		}
	}
	return nil
}

func (queries inventoryQueries) GetBlock(ctx context.Context, tenantID inventory.TenantID, blockID inventory.BlockID) (inventory.Block, error) {
	return queries.selectBlock(ctx, sqlSelectBlock, tenantID.String(), blockID.String())
}

func (queries inventoryQueries) GetBlockByLockID(ctx context.Context, tenantID inventory.TenantID, lockID inventory.LockID) (inventory.Block, error) {
	return queries.selectBlock(ctx, sqlSelectBlockByLockID, tenantID.String(), lockID.String())
}

func (queries inventoryQueries) InsertBlock(ctx context.Context, block inventory.Block) error {
	_, err := queries.db.Exec(ctx, sqlInsertBlock,
		block.BlockID.String(),
		block.TenantID.String(),
		block.LockID.String(),
		block.Window.StartUnixUTC(),
		block.Window.EndUnixUTC(),
		block.Reason.String(),
		block.State.String(),
		block.CreatedBy,
		block.CreatedUnixUTC,
	)
	if isUniqueViolation(err, constraintBlockLock) {
		return wrapInventoryError(errorSubjectBlock, errorCodeDuplicate, inventory.ErrDuplicateLockID)
	}
	if err != nil {
		return wrapInventoryError(errorSubjectBlock, errorCodeInsert, err)
	}
	for _, siteID := range block.SiteIDs {
		if _, err := queries.db.Exec(ctx, sqlInsertBlockSite, block.BlockID.String(), siteID.String()); err != nil {
			return wrapInventoryError(errorSubjectBlock, errorCodeInsert, err)
		}
	}
	return nil
}

func (queries inventoryQueries) MarkBlockReleased(ctx context.Context, tenantID inventory.TenantID, blockID inventory.BlockID, releasedAtUnixUTC int64) error {
	_, err := queries.db.Exec(ctx, sqlMarkBlockReleased, tenantID.String(), blockID.String(), releasedAtUnixUTC)
	if err != nil {
		return wrapInventoryError(errorSubjectBlock, errorCodeUpdate, err)
	}
	return nil
}

func (queries inventoryQueries) BlockedSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID, window inventory.Window) ([]inventory.SiteID, error) {
	return queries.selectSites(ctx, sqlBlockedSites, tenantID, siteIDs, window)
}

func (queries inventoryQueries) ReservedSites(ctx context.Context, tenantID inventory.TenantID, siteIDs []inventory.SiteID, window inventory.Window) ([]inventory.SiteID, error) {
	return queries.selectSites(ctx, sqlReservedSites, tenantID, siteIDs, window)
}

func (queries inventoryQueries) InsertGroup(ctx context.Context, group inventory.Group) error {
	_, err := queries.db.Exec(ctx, sqlInsertGroup,
		group.GroupID.String(),
		group.TenantID.String(),
		group.SharedPayment,
		group.SharedComm,
		group.CreatedUnixUTC,
	)
	if err != nil {
		return wrapInventoryError(errorSubjectGroup, errorCodeInsert, err)
	}
	return nil
}

func (queries inventoryQueries) GetGroup(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) (inventory.Group, error) {
	var (
		groupIDValue     string
		tenantValue      string
		sharedPayment    bool
		sharedComm       bool
		createdAtUnixUTC int64
	)
	err := queries.db.QueryRow(ctx, sqlSelectGroup, tenantID.String(), groupID.String()).Scan(
		&groupIDValue,
		&tenantValue,
		&sharedPayment,
		&sharedComm,
		&createdAtUnixUTC,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Group{}, wrapInventoryError(errorSubjectGroup, errorCodeGet, inventory.ErrNotFound)
	}
	if err != nil {
		return inventory.Group{}, wrapInventoryError(errorSubjectGroup, errorCodeGet, err)
	}
	parsedGroupID, err := inventory.NewGroupID(groupIDValue)
	if err != nil {
		return inventory.Group{}, wrapInventoryError(errorSubjectGroup, errorCodeInvalid, err)
	}
	parsedTenantID, err := inventory.NewTenantID(tenantValue)
	if err != nil {
		return inventory.Group{}, wrapInventoryError(errorSubjectGroup, errorCodeInvalid, err)
	}
	return inventory.Group{
		GroupID:        parsedGroupID,
		TenantID:       parsedTenantID,
		SharedPayment:  sharedPayment,
		SharedComm:     sharedComm,
		CreatedUnixUTC: createdAtUnixUTC,
	}, nil
}

func (queries inventoryQueries) LinkReservation(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID, reservationID inventory.ReservationID, role inventory.GroupRole) error {
	_, err := queries.db.Exec(ctx, sqlInsertGroupReservation,
		groupID.String(), reservationID.String(), tenantID.String(), role.String(),
	)
	if isUniqueViolation(err, constraintGroupReservation) {
		return wrapInventoryError(errorSubjectMember, errorCodeDuplicate, inventory.ErrReservationLinked)
	}
	if err != nil {
		return wrapInventoryError(errorSubjectMember, errorCodeInsert, err)
	}
	return nil
}

func (queries inventoryQueries) UnlinkReservation(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID, reservationID inventory.ReservationID) error {
	tag, err := queries.db.Exec(ctx, sqlDeleteGroupReservation,
		tenantID.String(), groupID.String(), reservationID.String(),
	)
	if err != nil {
		return wrapInventoryError(errorSubjectMember, errorCodeDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapInventoryError(errorSubjectMember, errorCodeDelete, inventory.ErrNotFound)
	}
	return nil
}

func (queries inventoryQueries) UnlinkAllReservations(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) error {
	_, err := queries.db.Exec(ctx, sqlDeleteAllGroupReservations, tenantID.String(), groupID.String())
	if err != nil {
		return wrapInventoryError(errorSubjectMember, errorCodeDelete, err)
	}
	return nil
}

func (queries inventoryQueries) ListGroupMembers(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) ([]inventory.GroupMember, error) {
	rows, err := queries.db.Query(ctx, sqlSelectGroupMembers, tenantID.String(), groupID.String())
	if err != nil {
		return nil, wrapInventoryError(errorSubjectMember, errorCodeList, err)
	}
	defer rows.Close()
	members := make([]inventory.GroupMember, 0, 8)
	for rows.Next() {
		var (
			reservationValue string
			roleValue        string
		)
		if err := rows.Scan(&reservationValue, &roleValue); err != nil {
			return nil, wrapInventoryError(errorSubjectMember, errorCodeInvalid, err)
		}
		reservationID, err := inventory.NewReservationID(reservationValue)
		if err != nil {
			return nil, wrapInventoryError(errorSubjectMember, errorCodeInvalid, err)
		}
		role, err := inventory.ParseGroupRole(roleValue)
		if err != nil {
			return nil, wrapInventoryError(errorSubjectMember, errorCodeInvalid, err)
		}
		members = append(members, inventory.GroupMember{ReservationID: reservationID, Role: role})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapInventoryError(errorSubjectMember, errorCodeList, err)
	}
	return members, nil
}

func (queries inventoryQueries) DeleteGroup(ctx context.Context, tenantID inventory.TenantID, groupID inventory.GroupID) error {
	_, err := queries.db.Exec(ctx, sqlDeleteGroup, tenantID.String(), groupID.String())
	if err != nil {
		return wrapInventoryError(errorSubjectGroup, errorCodeDelete, err)
	}
	return nil
}

func (queries inventoryQueries) selectBlock(ctx context.Context, sql string, tenantValue string, keyValue string) (inventory.Block, error) {
	var (
		blockIDValue       string
		tenantIDValue      string
		lockIDValue        string
		windowStartUnixUTC int64
		windowEndUnixUTC   int64
		reasonValue        string
		stateValue         string
		createdBy          string
		createdAtUnixUTC   int64
		releasedAtUnixUTC  int64
	)
	err := queries.db.QueryRow(ctx, sql, tenantValue, keyValue).Scan(
		&blockIDValue,
		&tenantIDValue,
		&lockIDValue,
		&windowStartUnixUTC,
		&windowEndUnixUTC,
		&reasonValue,
		&stateValue,
		&createdBy,
		&createdAtUnixUTC,
		&releasedAtUnixUTC,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, inventory.ErrNotFound)
	}
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, err)
	}

	siteRows, err := queries.db.Query(ctx, sqlSelectBlockSites, blockIDValue)
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, err)
	}
	defer siteRows.Close()
	siteIDs := make([]inventory.SiteID, 0, 4)
	for siteRows.Next() {
		var siteValue string
		if err := siteRows.Scan(&siteValue); err != nil {
			return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
		}
		siteID, err := inventory.NewSiteID(siteValue)
		if err != nil {
			return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
		}
		siteIDs = append(siteIDs, siteID)
	}
	if err := siteRows.Err(); err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeGet, err)
	}

	blockID, err := inventory.NewBlockID(blockIDValue)
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
	}
	parsedTenantID, err := inventory.NewTenantID(tenantIDValue)
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
	}
	lockID, err := inventory.NewLockID(lockIDValue)
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
	}
	window, err := inventory.NewWindow(windowStartUnixUTC, windowEndUnixUTC)
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
	}
	reason, err := inventory.ParseBlockReason(reasonValue)
	if err != nil {
		return inventory.Block{}, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
	}
	return inventory.Block{
		BlockID:         blockID,
		TenantID:        parsedTenantID,
		LockID:          lockID,
		SiteIDs:         siteIDs,
		Window:          window,
		Reason:          reason,
		State:           inventory.BlockState(stateValue),
		CreatedBy:       createdBy,
		CreatedUnixUTC:  createdAtUnixUTC,
		ReleasedUnixUTC: releasedAtUnixUTC,
	}, nil
}

func (queries inventoryQueries) selectSites(ctx context.Context, sql string, tenantID inventory.TenantID, siteIDs []inventory.SiteID, window inventory.Window) ([]inventory.SiteID, error) {
	values := make([]string, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		values = append(values, siteID.String())
	}
	rows, err := queries.db.Query(ctx, sql, tenantID.String(), values, window.EndUnixUTC(), window.StartUnixUTC())
	if err != nil {
		return nil, wrapInventoryError(errorSubjectBlock, errorCodeOverlapLookup, err)
	}
	defer rows.Close()
	matched := make([]inventory.SiteID, 0, len(siteIDs))
	for rows.Next() {
		var siteValue string
		if err := rows.Scan(&siteValue); err != nil {
			return nil, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
		}
		siteID, err := inventory.NewSiteID(siteValue)
		if err != nil {
			return nil, wrapInventoryError(errorSubjectBlock, errorCodeInvalid, err)
		}
		matched = append(matched, siteID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapInventoryError(errorSubjectBlock, errorCodeOverlapLookup, err)
	}
	return matched, nil
}

func wrapInventoryError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}
