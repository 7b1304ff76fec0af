package pgstore

import (
	"context"
	"errors"

	"github.com/campreserv/core/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	sqlSeedAccount = `
		insert into accounts(code, name, normal_side, kind, created_at)
		values($1, $2, $3, $4, now())
		on conflict (code) do nothing
	`

	sqlInsertPostingGroup = `
		insert into posting_groups(
			posting_group_id, tenant_id, dedupe_key, unbalanced_adjustment, approved_by,
			source_reference, reservation_ref, guest_ref, metadata, occurred_at, created_at
		)
		values(
			$1, $2, $3, $4, $5, $6, $7, $8,
			coalesce(nullif($9,''),'{}')::jsonb,
			to_timestamp($10), to_timestamp($11)
		)
	`

	sqlInsertLedgerEntry = `
		insert into ledger_entries(
			entry_id, posting_group_id, tenant_id, account_code, direction, amount_minor_units,
			source_reference, reservation_ref, guest_ref, occurred_at, created_at
		)
		values(
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8,
			to_timestamp($9), to_timestamp($10)
		)
	`

	sqlSelectGroupByDedupeKey = `
		select
			posting_group_id,
			tenant_id,
			dedupe_key,
			unbalanced_adjustment,
			coalesce(approved_by,''),
			coalesce(source_reference,''),
			coalesce(reservation_ref,''),
			coalesce(guest_ref,''),
			coalesce(metadata::text,'{}'),
			extract(epoch from occurred_at)::bigint,
			extract(epoch from created_at)::bigint
		from posting_groups
		where tenant_id = $1 and dedupe_key = $2
	`

	sqlSelectEntriesByGroup = `
		select
			entry_id::text,
			posting_group_id,
			tenant_id,
			account_code,
			direction,
			amount_minor_units,
			extract(epoch from occurred_at)::bigint,
			extract(epoch from created_at)::bigint
		from ledger_entries
		where posting_group_id = $1 and tenant_id = $2
		order by entry_id
	`

	sqlSumAccount = `
		select coalesce(sum(amount_minor_units),0) from ledger_entries
		where tenant_id = $1 and account_code = $2 and direction = $3
		and occurred_at >= to_timestamp($4) and occurred_at < to_timestamp($5)
	`

	sqlSumSource = `
		select coalesce(sum(amount_minor_units),0) from ledger_entries
		where tenant_id = $1 and account_code = $2 and source_reference = $3 and direction = $4
	`

	sqlListEntriesBefore = `
		select
			entry_id::text,
			posting_group_id,
			tenant_id,
			account_code,
			direction,
			amount_minor_units,
			extract(epoch from occurred_at)::bigint,
			extract(epoch from created_at)::bigint
		from ledger_entries
		where tenant_id = $1
		and ($2 = '' or reservation_ref = $2)
		and ($3 = '' or guest_ref = $3)
		and created_at < to_timestamp($4)
		order by created_at desc, entry_id
		limit $5
	`
)

// LedgerStore implements ledger.Store over a pgx pool (autocommit).
type LedgerStore struct {
	pool *pgxpool.Pool
	ledgerQueries
}

// NewLedgerStore returns a LedgerStore backed by a pgx pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool, ledgerQueries: ledgerQueries{db: pool}}
}

// WithTx executes fn within a transaction.
func (store *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapLedgerError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &ledgerTxStore{ledgerQueries: ledgerQueries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapLedgerError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// ledgerTxStore implements ledger.Store for an active transaction.
type ledgerTxStore struct {
	ledgerQueries
}

// WithTx runs fn on the already-open transaction; nested transactions are not
// opened.
func (store *ledgerTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

// ledgerQueries holds the statements shared between the pool-backed store and
// the transaction-backed one.
type ledgerQueries struct {
	db querier
}

// SeedAccounts inserts chart accounts that are not present yet.
func (queries ledgerQueries) SeedAccounts(ctx context.Context, accounts []ledger.Account) error {
	for _, account := range accounts {
		_, err := queries.db.Exec(ctx, sqlSeedAccount,
			account.Code.String(),
			account.Name,
			account.NormalSide.String(),
			string(account.Kind),
		)
		if err != nil {
			return wrapLedgerError(errorSubjectAccount, errorCodeSeed, err)
		}
	}
	return nil
}

func (queries ledgerQueries) InsertPosting(ctx context.Context, posting ledger.Posting) error {
	_, err := queries.db.Exec(ctx, sqlInsertPostingGroup,
		posting.PostingGroupID.String(),
		posting.TenantID.String(),
		posting.DedupeKey.String(),
		posting.UnbalancedAdjustment,
		posting.ApprovedBy,
		posting.SourceReference,
		posting.ReservationRef,
		posting.GuestRef,
		posting.MetadataJSON,
		posting.OccurredAtUnixUTC,
		posting.CreatedUnixUTC,
	)
	if isUniqueViolation(err, constraintPostingDedupe) {
		return wrapLedgerError(errorSubjectPosting, errorCodeDuplicate, ledger.ErrDuplicatePosting)
	}
	if err != nil {
		return wrapLedgerError(errorSubjectPosting, errorCodeInsert, err)
	}
	for _, leg := range posting.Legs {
		_, err := queries.db.Exec(ctx, sqlInsertLedgerEntry,
			posting.PostingGroupID.String(),
			posting.TenantID.String(),
			leg.AccountCode.String(),
			leg.Direction.String(),
			leg.AmountMinorUnits.Int64(),
			posting.SourceReference,
			posting.ReservationRef,
			posting.GuestRef,
			leg.OccurredAtUnixUTC,
			leg.CreatedUnixUTC,
		)
		if err != nil {
			return wrapLedgerError(errorSubjectEntry, errorCodeInsert, err)
		}
	}
	return nil
}

func (queries ledgerQueries) GetPostingByDedupeKey(ctx context.Context, tenantID ledger.TenantID, dedupeKey ledger.DedupeKey) (ledger.Posting, error) {
	var (
		groupIDValue         string
		tenantValue          string
		dedupeValue          string
		unbalancedAdjustment bool
		approvedBy           string
		sourceReference      string
		reservationRef       string
		guestRef             string
		metadataValue        string
		occurredAtUnixUTC    int64
		createdAtUnixUTC     int64
	)
	err := queries.db.QueryRow(ctx, sqlSelectGroupByDedupeKey, tenantID.String(), dedupeKey.String()).Scan(
		&groupIDValue,
		&tenantValue,
		&dedupeValue,
		&unbalancedAdjustment,
		&approvedBy,
		&sourceReference,
		&reservationRef,
		&guestRef,
		&metadataValue,
		&occurredAtUnixUTC,
		&createdAtUnixUTC,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeGet, err)
	}

	groupID, err := ledger.NewPostingGroupID(groupIDValue)
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeInvalid, err)
	}
	parsedTenantID, err := ledger.NewTenantID(tenantValue)
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeInvalid, err)
	}
	parsedDedupeKey, err := ledger.NewDedupeKey(dedupeValue)
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeInvalid, err)
	}

	rows, err := queries.db.Query(ctx, sqlSelectEntriesByGroup, groupIDValue, tenantValue)
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	legs, err := scanEntries(rows)
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectEntry, errorCodeInvalid, err)
	}

	return ledger.Posting{
		PostingGroupID:       groupID,
		TenantID:             parsedTenantID,
		DedupeKey:            parsedDedupeKey,
		UnbalancedAdjustment: unbalancedAdjustment,
		ApprovedBy:           approvedBy,
		SourceReference:      sourceReference,
		ReservationRef:       reservationRef,
		GuestRef:             guestRef,
		MetadataJSON:         metadataValue,
		OccurredAtUnixUTC:    occurredAtUnixUTC,
		CreatedUnixUTC:       createdAtUnixUTC,
		Legs:                 legs,
	}, nil
}

func (queries ledgerQueries) SumAccount(ctx context.Context, tenantID ledger.TenantID, accountCode ledger.AccountCode, direction ledger.Direction, period ledger.Period) (int64, error) {
	var sum int64
	err := queries.db.QueryRow(ctx, sqlSumAccount,
		tenantID.String(),
		accountCode.String(),
		direction.String(),
		period.StartUnixUTC(),
		period.EndUnixUTC(),
	).Scan(&sum)
	if err != nil {
		return 0, wrapLedgerError(errorSubjectEntry, errorCodeSum, err)
	}
	return sum, nil
}

func (queries ledgerQueries) SourceTotals(ctx context.Context, tenantID ledger.TenantID, cashAccount ledger.AccountCode, sourceReference string) (ledger.SourceTotals, error) {
	var totals ledger.SourceTotals
	err := queries.db.QueryRow(ctx, sqlSumSource,
		tenantID.String(), cashAccount.String(), sourceReference, ledger.DirectionDebit.String(),
	).Scan(&totals.CapturedMinorUnits)
	if err != nil {
		return ledger.SourceTotals{}, wrapLedgerError(errorSubjectEntry, errorCodeSum, err)
	}
	err = queries.db.QueryRow(ctx, sqlSumSource,
		tenantID.String(), cashAccount.String(), sourceReference, ledger.DirectionCredit.String(),
	).Scan(&totals.RefundedMinorUnits)
	if err != nil {
		return ledger.SourceTotals{}, wrapLedgerError(errorSubjectEntry, errorCodeSum, err)
	}
	return totals, nil
}

func (queries ledgerQueries) ListEntries(ctx context.Context, tenantID ledger.TenantID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	rows, err := queries.db.Query(ctx, sqlListEntriesBefore,
		tenantID.String(),
		filter.ReservationRef,
		filter.GuestRef,
		filter.BeforeUnixUTC,
		filter.Limit,
	)
	if err != nil {
		return nil, wrapLedgerError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, wrapLedgerError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entries, nil
}

func scanEntries(rows pgx.Rows) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, 8)
	for rows.Next() {
		var (
			entryIDValue      string
			groupIDValue      string
			tenantValue       string
			accountValue      string
			directionValue    string
			amountValue       int64
			occurredAtUnixUTC int64
			createdAtUnixUTC  int64
		)
		if err := rows.Scan(
			&entryIDValue,
			&groupIDValue,
			&tenantValue,
			&accountValue,
			&directionValue,
			&amountValue,
			&occurredAtUnixUTC,
			&createdAtUnixUTC,
		); err != nil {
			return nil, err
		}
		groupID, err := ledger.NewPostingGroupID(groupIDValue)
		if err != nil {
			return nil, err
		}
		tenantID, err := ledger.NewTenantID(tenantValue)
		if err != nil {
			return nil, err
		}
		accountCode, err := ledger.NewAccountCode(accountValue)
		if err != nil {
			return nil, err
		}
		direction, err := ledger.ParseDirection(directionValue)
		if err != nil {
			return nil, err
		}
		amount, err := ledger.NewAmountMinorUnits(amountValue)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ledger.Entry{
			EntryID:           entryIDValue,
			PostingGroupID:    groupID,
			TenantID:          tenantID,
			AccountCode:       accountCode,
			Direction:         direction,
			AmountMinorUnits:  amount,
			OccurredAtUnixUTC: occurredAtUnixUTC,
			CreatedUnixUTC:    createdAtUnixUTC,
		})
	}
	return entries, rows.Err()
}

func wrapLedgerError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}
