package inventory

import "context"

// Store is the persistence contract used by the block manager and group
// coordinator. The unique constraint on (tenant_id, lock_id) lives in
// storage; InsertBlock must surface a violation as ErrDuplicateLockID so
// concurrent retries collapse onto one block.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// LockSites serializes the conflict-check-and-insert for the given sites
	// inside the current transaction (advisory locks on postgres, a no-op
	// where an external SiteLocker already covers the critical section).
	LockSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID) error
	GetBlock(ctx context.Context, tenantID TenantID, blockID BlockID) (Block, error)
	GetBlockByLockID(ctx context.Context, tenantID TenantID, lockID LockID) (Block, error)
	InsertBlock(ctx context.Context, block Block) error
	MarkBlockReleased(ctx context.Context, tenantID TenantID, blockID BlockID, releasedAtUnixUTC int64) error

	// BlockedSites returns the subset of siteIDs covered by an active block
	// overlapping the window; ReservedSites does the same against confirmed
	// reservations owned by the booking subsystem.
	BlockedSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID, window Window) ([]SiteID, error)
	ReservedSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID, window Window) ([]SiteID, error)

	InsertGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, tenantID TenantID, groupID GroupID) (Group, error)
	LinkReservation(ctx context.Context, tenantID TenantID, groupID GroupID, reservationID ReservationID, role GroupRole) error
	UnlinkReservation(ctx context.Context, tenantID TenantID, groupID GroupID, reservationID ReservationID) error
	UnlinkAllReservations(ctx context.Context, tenantID TenantID, groupID GroupID) error
	ListGroupMembers(ctx context.Context, tenantID TenantID, groupID GroupID) ([]GroupMember, error)
	DeleteGroup(ctx context.Context, tenantID TenantID, groupID GroupID) error
}

// UnlockFunc releases locks acquired by a SiteLocker.
type UnlockFunc func(ctx context.Context)

// SiteLocker serializes block creation per affected site across workers.
// Implementations must acquire sites in the order given (the manager sorts
// them) so two overlapping requests cannot deadlock.
type SiteLocker interface {
	LockSites(ctx context.Context, tenantID TenantID, siteIDs []SiteID) (UnlockFunc, error)
}
