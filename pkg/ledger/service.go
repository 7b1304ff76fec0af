package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Service is the posting engine: it validates multi-leg postings against the
// chart of accounts and commits them atomically over a Store.
type Service struct {
	store          Store
	registry       *Registry
	nowFn          func() int64
	logger         OperationLogger
	commitListener CommitListener
}

// NewService wires a Service.
func NewService(store Store, registry *Registry, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: registry dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, registry: registry, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Registry exposes the chart the service validates against.
func (service *Service) Registry() *Registry {
	return service.registry
}

// Post validates and commits a balanced posting. Re-posting a dedupe key that
// already committed returns the stored result with Replayed set; retries and
// webhook redeliveries are therefore safe.
func (service *Service) Post(ctx context.Context, input PostingInput) (PostingResult, error) {
	result, operationError := service.commit(ctx, input, false, "")
	service.logOperation(ctx, operationPost, input, result, operationError)
	return result, operationError
}

// PostAdjustment commits a posting that may be unbalanced. Manual corrections
// only: the caller must name the approving operator, and a reversing pair is
// expected to follow.
func (service *Service) PostAdjustment(ctx context.Context, input PostingInput, approvedBy string) (PostingResult, error) {
	if approvedBy == "" {
		err := WrapError(operationAdjust, "posting", "unapproved", ErrAdjustmentNotApproved)
		service.logOperation(ctx, operationAdjust, input, PostingResult{}, err)
		return PostingResult{}, err
	}
	result, operationError := service.commit(ctx, input, true, approvedBy)
	service.logOperation(ctx, operationAdjust, input, result, operationError)
	return result, operationError
}

func (service *Service) commit(ctx context.Context, input PostingInput, unbalancedAdjustment bool, approvedBy string) (PostingResult, error) {
	if err := service.validateInput(input, unbalancedAdjustment); err != nil {
		return PostingResult{}, err
	}

	var (
		result    PostingResult
		committed Posting
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, err := transactionStore.GetPostingByDedupeKey(ctx, input.TenantID, input.DedupeKey)
		if err == nil {
			result = replayedResult(existing)
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		posting := service.buildPosting(input, unbalancedAdjustment, approvedBy)
		if err := transactionStore.InsertPosting(ctx, posting); err != nil {
			return err
		}
		committed = posting
		result = PostingResult{
			PostingGroupID: posting.PostingGroupID,
			CommittedUnix:  posting.CreatedUnixUTC,
		}
		return nil
	})
	if errors.Is(operationError, ErrDuplicatePosting) {
		// A concurrent retry won the insert race; the stored group is the result.
		existing, readErr := service.store.GetPostingByDedupeKey(ctx, input.TenantID, input.DedupeKey)
		if readErr != nil {
			return PostingResult{}, readErr
		}
		return replayedResult(existing), nil
	}
	if operationError != nil {
		return PostingResult{}, operationError
	}
	if !result.Replayed && service.commitListener != nil {
		service.commitListener.PostingCommitted(ctx, committed)
	}
	return result, nil
}

func (service *Service) validateInput(input PostingInput, unbalancedAdjustment bool) error {
	if input.TenantID.value == "" {
		return fmt.Errorf("%w: tenant id required", ErrInvalidTenantID)
	}
	if input.PostingGroupID.value == "" {
		return fmt.Errorf("%w: posting group id required", ErrInvalidPostingGroupID)
	}
	if input.DedupeKey.value == "" {
		return fmt.Errorf("%w: dedupe key required", ErrInvalidDedupeKey)
	}
	if len(input.Legs) == 0 {
		return fmt.Errorf("%w: at least one leg required", ErrInvalidLegs)
	}
	if input.MetadataJSON != "" && !json.Valid([]byte(input.MetadataJSON)) {
		return fmt.Errorf("%w: not valid json", ErrInvalidMetadata)
	}
	for _, leg := range input.Legs {
		if _, err := service.registry.Resolve(leg.AccountCode()); err != nil {
			return err
		}
		if leg.Amount() <= 0 {
			return fmt.Errorf("%w: leg on account %s", ErrInvalidAmount, leg.AccountCode().String())
		}
	}
	if !unbalancedAdjustment {
		debits, credits := sumByDirection(input.Legs)
		if debits != credits {
			return fmt.Errorf("%w: debits %d, credits %d", ErrUnbalancedPosting, debits, credits)
		}
	}
	return nil
}

func (service *Service) buildPosting(input PostingInput, unbalancedAdjustment bool, approvedBy string) Posting {
	nowUnixUTC := service.nowFn()
	occurredAt := input.OccurredAtUnixUTC
	if occurredAt == 0 {
		occurredAt = nowUnixUTC
	}
	legs := make([]Entry, 0, len(input.Legs))
	for _, leg := range input.Legs {
		legs = append(legs, Entry{
			PostingGroupID:    input.PostingGroupID,
			TenantID:          input.TenantID,
			AccountCode:       leg.AccountCode(),
			Direction:         leg.Direction(),
			AmountMinorUnits:  leg.Amount(),
			OccurredAtUnixUTC: occurredAt,
			CreatedUnixUTC:    nowUnixUTC,
		})
	}
	return Posting{
		PostingGroupID:       input.PostingGroupID,
		TenantID:             input.TenantID,
		DedupeKey:            input.DedupeKey,
		UnbalancedAdjustment: unbalancedAdjustment,
		ApprovedBy:           approvedBy,
		SourceReference:      input.SourceReference,
		ReservationRef:       input.ReservationRef,
		GuestRef:             input.GuestRef,
		MetadataJSON:         input.MetadataJSON,
		OccurredAtUnixUTC:    occurredAt,
		CreatedUnixUTC:       nowUnixUTC,
		Legs:                 legs,
	}
}

func replayedResult(stored Posting) PostingResult {
	return PostingResult{
		PostingGroupID: stored.PostingGroupID,
		Replayed:       true,
		CommittedUnix:  stored.CreatedUnixUTC,
	}
}

func (service *Service) logOperation(ctx context.Context, operation string, input PostingInput, result PostingResult, operationError error) {
	if service.logger == nil {
		return
	}
	debits, credits := sumByDirection(input.Legs)
	entry := OperationLog{
		Operation:      operation,
		TenantID:       input.TenantID,
		PostingGroupID: input.PostingGroupID,
		DedupeKey:      input.DedupeKey,
		DebitsMinor:    debits,
		CreditsMinor:   credits,
		Replayed:       result.Replayed,
		Error:          operationError,
	}
	if operationError != nil {
		entry.Status = operationStatusError
	} else {
		entry.Status = operationStatusOK
	}
	service.logger.LogOperation(ctx, entry)
}
