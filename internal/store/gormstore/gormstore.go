// Package gormstore persists the ledger and inventory domains through GORM,
// backed by postgres in production and sqlite in tests and single-node
// deployments.
package gormstore

import (
	"errors"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	constraintPostingDedupe    = "uniq_posting_dedupe"
	constraintBlockLock        = "uniq_block_lock"
	constraintGroupReservation = "uniq_group_reservation"
	pgUniqueViolationCode      = "23505"
	sqliteConstraintCode       = 19
	defaultMetadataJSON        = "{}"

	reservationStatusConfirmed = "confirmed"

	errorOperationStore    = "store"
	errorSubjectPosting    = "posting"
	errorSubjectEntry      = "entry"
	errorSubjectAccount    = "account"
	errorSubjectBlock      = "block"
	errorSubjectGroup      = "group"
	errorSubjectMember     = "member"
	errorCodeInsert        = "insert"
	errorCodeGet           = "get"
	errorCodeList          = "list"
	errorCodeSum           = "sum"
	errorCodeSeed          = "seed"
	errorCodeUpdate        = "update"
	errorCodeDelete        = "delete"
	errorCodeDuplicate     = "duplicate"
	errorCodeInvalid       = "invalid"
	errorCodeOverlapLookup = "overlap_lookup"
)

// AutoMigrate creates or updates the schema. Production postgres runs
// migrations out of band; sqlite deployments and tests rely on this.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&PostingGroup{},
		&LedgerEntry{},
		&Block{},
		&BlockSite{},
		&Group{},
		&GroupReservation{},
		&Reservation{},
	)
}

type sqlSum struct {
	Total int64
}

func metadataColumn(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

// isUniqueViolation matches both the postgres driver error (by constraint
// name) and the sqlite constraint error family. GORM's translated
// ErrDuplicatedKey is accepted too, where the dialect loses the constraint
// name.
func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
