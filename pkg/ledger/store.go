package ledger

import "context"

// Store is the persistence contract used by the posting engine. The unique
// constraint on (tenant_id, dedupe_key) lives in storage; InsertPosting must
// surface a violation as ErrDuplicatePosting so concurrent retries collapse
// onto one committed group.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	InsertPosting(ctx context.Context, posting Posting) error
	GetPostingByDedupeKey(ctx context.Context, tenantID TenantID, dedupeKey DedupeKey) (Posting, error)
	SumAccount(ctx context.Context, tenantID TenantID, accountCode AccountCode, direction Direction, period Period) (int64, error)
	SourceTotals(ctx context.Context, tenantID TenantID, cashAccount AccountCode, sourceReference string) (SourceTotals, error)
	ListEntries(ctx context.Context, tenantID TenantID, filter EntryFilter) ([]Entry, error)
}
