// Package pgstore persists the ledger and inventory domains directly over
// pgx, for deployments that want prepared-statement SQL and postgres advisory
// locks instead of the GORM path.
package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	constraintPostingDedupe    = "uniq_posting_dedupe"
	constraintBlockLock        = "uniq_block_lock"
	constraintGroupReservation = "uniq_group_reservation"
	pgUniqueViolationCode      = "23505"

	errorOperationStore     = "store"
	errorSubjectTransaction = "transaction"
	errorSubjectPosting     = "posting"
	errorSubjectEntry       = "entry"
	errorSubjectAccount     = "account"
	errorSubjectBlock       = "block"
	errorSubjectGroup       = "group"
	errorSubjectMember      = "member"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeInsert         = "insert"
	errorCodeGet            = "get"
	errorCodeList           = "list"
	errorCodeSum            = "sum"
	errorCodeSeed           = "seed"
	errorCodeUpdate         = "update"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeInvalid        = "invalid"
	errorCodeLock           = "lock"
	errorCodeOverlapLookup  = "overlap_lookup"
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error, constraintName string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	return false
}
