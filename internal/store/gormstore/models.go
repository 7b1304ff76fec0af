package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account mirrors the accounts table, seeded from the chart at startup.
type Account struct {
	Code       string    `gorm:"primaryKey"`
	Name       string    `gorm:"not null"`
	NormalSide string    `gorm:"not null"`
	Kind       string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// PostingGroup mirrors the posting_groups table. The unique index on
// (tenant_id, dedupe_key) is what makes retried postings collapse onto one
// committed group.
type PostingGroup struct {
	PostingGroupID       string         `gorm:"primaryKey"`
	TenantID             string         `gorm:"not null;index:uniq_posting_dedupe,unique,priority:1"`
	DedupeKey            string         `gorm:"not null;index:uniq_posting_dedupe,unique,priority:2"`
	UnbalancedAdjustment bool           `gorm:"not null"`
	ApprovedBy           string         `gorm:""`
	SourceReference      string         `gorm:"index:idx_posting_source"`
	ReservationRef       string         `gorm:""`
	GuestRef             string         `gorm:""`
	Metadata             datatypes.JSON `gorm:""`
	OccurredAt           time.Time      `gorm:"not null"`
	CreatedAt            time.Time      `gorm:"not null"`
}

func (PostingGroup) TableName() string { return "posting_groups" }

// LedgerEntry mirrors the ledger_entries table: one immutable row per debit
// or credit leg. Source and booking references are denormalized from the
// group for query paths.
type LedgerEntry struct {
	EntryID          string    `gorm:"type:uuid;primaryKey"`
	PostingGroupID   string    `gorm:"not null;index:idx_entry_group"`
	TenantID         string    `gorm:"not null;index:idx_entry_account,priority:1;index:idx_entry_created,priority:1"`
	AccountCode      string    `gorm:"not null;index:idx_entry_account,priority:2"`
	Direction        string    `gorm:"not null;index:idx_entry_account,priority:3"`
	AmountMinorUnits int64     `gorm:"not null"`
	SourceReference  string    `gorm:"index:idx_entry_source"`
	ReservationRef   string    `gorm:"index:idx_entry_reservation"`
	GuestRef         string    `gorm:"index:idx_entry_guest"`
	OccurredAt       time.Time `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index:idx_entry_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// Block mirrors the blocks table. Blocks are never deleted; released rows
// stay for audit.
type Block struct {
	BlockID     string     `gorm:"primaryKey"`
	TenantID    string     `gorm:"not null;index:uniq_block_lock,unique,priority:1"`
	LockID      string     `gorm:"not null;index:uniq_block_lock,unique,priority:2"`
	WindowStart time.Time  `gorm:"not null;index:idx_block_window,priority:1"`
	WindowEnd   time.Time  `gorm:"not null;index:idx_block_window,priority:2"`
	Reason      string     `gorm:"not null"`
	State       string     `gorm:"not null"`
	CreatedBy   string     `gorm:""`
	CreatedAt   time.Time  `gorm:"not null"`
	ReleasedAt  *time.Time `gorm:""`
}

func (Block) TableName() string { return "blocks" }

// BlockSite is the site set of a block, one row per site.
type BlockSite struct {
	BlockID string `gorm:"primaryKey"`
	SiteID  string `gorm:"primaryKey;index:idx_block_site"`
}

func (BlockSite) TableName() string { return "block_sites" }

// Group mirrors the groups table.
type Group struct {
	GroupID       string    `gorm:"primaryKey"`
	TenantID      string    `gorm:"not null;index:idx_group_tenant"`
	SharedPayment bool      `gorm:"not null"`
	SharedComm    bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (Group) TableName() string { return "groups" }

// GroupReservation links a booking-subsystem reservation into a group. The
// unique index keeps one reservation from joining two groups.
type GroupReservation struct {
	GroupID       string `gorm:"primaryKey"`
	ReservationID string `gorm:"primaryKey;index:uniq_group_reservation,unique,priority:2"`
	TenantID      string `gorm:"not null;index:uniq_group_reservation,unique,priority:1"`
	Role          string `gorm:"not null"`
}

func (GroupReservation) TableName() string { return "group_reservations" }

// Reservation is the booking subsystem's table, read here for overlap checks
// and never written.
type Reservation struct {
	ReservationID string    `gorm:"primaryKey"`
	TenantID      string    `gorm:"not null;index:idx_reservation_site,priority:1"`
	SiteID        string    `gorm:"not null;index:idx_reservation_site,priority:2"`
	ArrivalAt     time.Time `gorm:"not null"`
	DepartureAt   time.Time `gorm:"not null"`
	Status        string    `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }
