package ledger

import "context"

// Entries lists ledger entries for a tenant, newest first, filtered by
// reservation or guest reference and keyset-paginated by creation time.
func (service *Service) Entries(ctx context.Context, tenantID TenantID, filter EntryFilter) ([]Entry, error) {
	if tenantID.value == "" {
		return nil, WrapError(operationPost, "entries", "tenant", ErrInvalidTenantID)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultEntryListLimit
	}
	if filter.Limit > maxEntryListLimit {
		filter.Limit = maxEntryListLimit
	}
	if filter.BeforeUnixUTC == 0 {
		filter.BeforeUnixUTC = service.nowFn() + 1
	}
	return service.store.ListEntries(ctx, tenantID, filter)
}

// AccountBalance returns the period balance of one account, signed by its
// normal side (a debit-normal account grows with debits).
func (service *Service) AccountBalance(ctx context.Context, tenantID TenantID, code AccountCode, period Period) (int64, error) {
	account, err := service.registry.Resolve(code)
	if err != nil {
		return 0, err
	}
	debits, err := service.store.SumAccount(ctx, tenantID, code, DirectionDebit, period)
	if err != nil {
		return 0, err
	}
	credits, err := service.store.SumAccount(ctx, tenantID, code, DirectionCredit, period)
	if err != nil {
		return 0, err
	}
	if account.NormalSide == DirectionDebit {
		return debits - credits, nil
	}
	return credits - debits, nil
}
