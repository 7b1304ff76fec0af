package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/campreserv/core/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore implements ledger.Store using GORM.
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore returns a LedgerStore backed by gorm.DB.
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &LedgerStore{db: transaction})
	})
}

// SeedAccounts inserts chart accounts that are not present yet. Existing rows
// are left untouched so renames in the chart file never rewrite history.
func (store *LedgerStore) SeedAccounts(ctx context.Context, accounts []ledger.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	rows := make([]Account, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, Account{
			Code:       account.Code.String(),
			Name:       account.Name,
			NormalSide: account.NormalSide.String(),
			Kind:       string(account.Kind),
			CreatedAt:  time.Now().UTC(),
		})
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return wrapLedgerError(errorSubjectAccount, errorCodeSeed, err)
	}
	return nil
}

// InsertPosting writes the group row and its legs. A dedupe-key collision
// surfaces as ledger.ErrDuplicatePosting.
func (store *LedgerStore) InsertPosting(ctx context.Context, posting ledger.Posting) error {
	group := PostingGroup{
		PostingGroupID:       posting.PostingGroupID.String(),
		TenantID:             posting.TenantID.String(),
		DedupeKey:            posting.DedupeKey.String(),
		UnbalancedAdjustment: posting.UnbalancedAdjustment,
		ApprovedBy:           posting.ApprovedBy,
		SourceReference:      posting.SourceReference,
		ReservationRef:       posting.ReservationRef,
		GuestRef:             posting.GuestRef,
		Metadata:             metadataColumn(posting.MetadataJSON),
		OccurredAt:           time.Unix(posting.OccurredAtUnixUTC, 0).UTC(),
		CreatedAt:            time.Unix(posting.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&group).Error
	if isUniqueViolation(err, constraintPostingDedupe) {
		return wrapLedgerError(errorSubjectPosting, errorCodeDuplicate, ledger.ErrDuplicatePosting)
	}
	if err != nil {
		return wrapLedgerError(errorSubjectPosting, errorCodeInsert, err)
	}

	legs := make([]LedgerEntry, 0, len(posting.Legs))
	for _, leg := range posting.Legs {
		legs = append(legs, LedgerEntry{
			PostingGroupID:   posting.PostingGroupID.String(),
			TenantID:         posting.TenantID.String(),
			AccountCode:      leg.AccountCode.String(),
			Direction:        leg.Direction.String(),
			AmountMinorUnits: leg.AmountMinorUnits.Int64(),
			SourceReference:  posting.SourceReference,
			ReservationRef:   posting.ReservationRef,
			GuestRef:         posting.GuestRef,
			OccurredAt:       time.Unix(leg.OccurredAtUnixUTC, 0).UTC(),
			CreatedAt:        time.Unix(leg.CreatedUnixUTC, 0).UTC(),
		})
	}
	if err := store.db.WithContext(ctx).Create(&legs).Error; err != nil {
		return wrapLedgerError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

// GetPostingByDedupeKey loads the committed group for a dedupe key, legs
// included.
func (store *LedgerStore) GetPostingByDedupeKey(ctx context.Context, tenantID ledger.TenantID, dedupeKey ledger.DedupeKey) (ledger.Posting, error) {
	var group PostingGroup
	err := store.db.WithContext(ctx).
		Where("tenant_id = ? AND dedupe_key = ?", tenantID.String(), dedupeKey.String()).
		Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeGet, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeGet, err)
	}

	var legRows []LedgerEntry
	err = store.db.WithContext(ctx).
		Where("posting_group_id = ? AND tenant_id = ?", group.PostingGroupID, tenantID.String()).
		Order("entry_id").
		Find(&legRows).Error
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectEntry, errorCodeList, err)
	}

	posting, err := mapPostingGroup(group, legRows)
	if err != nil {
		return ledger.Posting{}, wrapLedgerError(errorSubjectPosting, errorCodeInvalid, err)
	}
	return posting, nil
}

// SumAccount totals one account and direction over a half-open period.
func (store *LedgerStore) SumAccount(ctx context.Context, tenantID ledger.TenantID, accountCode ledger.AccountCode, direction ledger.Direction, period ledger.Period) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_minor_units),0) as total").
		Where("tenant_id = ? AND account_code = ? AND direction = ?", tenantID.String(), accountCode.String(), direction.String()).
		Where("occurred_at >= ? AND occurred_at < ?", time.Unix(period.StartUnixUTC(), 0).UTC(), time.Unix(period.EndUnixUTC(), 0).UTC()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapLedgerError(errorSubjectEntry, errorCodeSum, err)
	}
	return sum.Total, nil
}

// SourceTotals aggregates cash captured and refunded against one payment
// reference.
func (store *LedgerStore) SourceTotals(ctx context.Context, tenantID ledger.TenantID, cashAccount ledger.AccountCode, sourceReference string) (ledger.SourceTotals, error) {
	captured, err := store.sumSource(ctx, tenantID, cashAccount, sourceReference, ledger.DirectionDebit)
	if err != nil {
		return ledger.SourceTotals{}, err
	}
	refunded, err := store.sumSource(ctx, tenantID, cashAccount, sourceReference, ledger.DirectionCredit)
	if err != nil {
		return ledger.SourceTotals{}, err
	}
	return ledger.SourceTotals{CapturedMinorUnits: captured, RefundedMinorUnits: refunded}, nil
}

func (store *LedgerStore) sumSource(ctx context.Context, tenantID ledger.TenantID, cashAccount ledger.AccountCode, sourceReference string, direction ledger.Direction) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_minor_units),0) as total").
		Where("tenant_id = ? AND account_code = ? AND source_reference = ? AND direction = ?",
			tenantID.String(), cashAccount.String(), sourceReference, direction.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapLedgerError(errorSubjectEntry, errorCodeSum, err)
	}
	return sum.Total, nil
}

// ListEntries returns entries newest first, filtered and keyset-paginated by
// created time.
func (store *LedgerStore) ListEntries(ctx context.Context, tenantID ledger.TenantID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	query := store.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID.String()).
		Where("created_at < ?", time.Unix(filter.BeforeUnixUTC, 0).UTC())
	if filter.ReservationRef != "" {
		query = query.Where("reservation_ref = ?", filter.ReservationRef)
	}
	if filter.GuestRef != "" {
		query = query.Where("guest_ref = ?", filter.GuestRef)
	}

	var rows []LedgerEntry
	err := query.Order("created_at DESC, entry_id").Limit(filter.Limit).Find(&rows).Error
	if err != nil {
		return nil, wrapLedgerError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapLedgerError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func wrapLedgerError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func mapPostingGroup(group PostingGroup, legRows []LedgerEntry) (ledger.Posting, error) {
	groupID, err := ledger.NewPostingGroupID(group.PostingGroupID)
	if err != nil {
		return ledger.Posting{}, err
	}
	tenantID, err := ledger.NewTenantID(group.TenantID)
	if err != nil {
		return ledger.Posting{}, err
	}
	dedupeKey, err := ledger.NewDedupeKey(group.DedupeKey)
	if err != nil {
		return ledger.Posting{}, err
	}
	legs := make([]ledger.Entry, 0, len(legRows))
	for _, row := range legRows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return ledger.Posting{}, err
		}
		legs = append(legs, entry)
	}
	return ledger.Posting{
		PostingGroupID:       groupID,
		TenantID:             tenantID,
		DedupeKey:            dedupeKey,
		UnbalancedAdjustment: group.UnbalancedAdjustment,
		ApprovedBy:           group.ApprovedBy,
		SourceReference:      group.SourceReference,
		ReservationRef:       group.ReservationRef,
		GuestRef:             group.GuestRef,
		MetadataJSON:         string(group.Metadata),
		OccurredAtUnixUTC:    group.OccurredAt.Unix(),
		CreatedUnixUTC:       group.CreatedAt.Unix(),
		Legs:                 legs,
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	groupID, err := ledger.NewPostingGroupID(row.PostingGroupID)
	if err != nil {
		return ledger.Entry{}, err
	}
	tenantID, err := ledger.NewTenantID(row.TenantID)
	if err != nil {
		return ledger.Entry{}, err
	}
	accountCode, err := ledger.NewAccountCode(row.AccountCode)
	if err != nil {
		return ledger.Entry{}, err
	}
	direction, err := ledger.ParseDirection(row.Direction)
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := ledger.NewAmountMinorUnits(row.AmountMinorUnits)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		EntryID:           row.EntryID,
		PostingGroupID:    groupID,
		TenantID:          tenantID,
		AccountCode:       accountCode,
		Direction:         direction,
		AmountMinorUnits:  amount,
		OccurredAtUnixUTC: row.OccurredAt.Unix(),
		CreatedUnixUTC:    row.CreatedAt.Unix(),
	}, nil
}
