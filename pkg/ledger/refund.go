package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RefundProcessor executes the monetary side of a refund with the external
// payments collaborator. Implementations must be idempotent on the supplied
// key so a retried call cannot refund twice, and must enforce their own
// refundable ceiling per payment: the eligibility check in RefundEngine is
// not serialized against concurrent refunds with distinct keys.
type RefundProcessor interface {
	ExecuteRefund(ctx context.Context, execution RefundExecution) (RefundReceipt, error)
}

// RefundExecution is the request handed to the payments collaborator.
type RefundExecution struct {
	TenantID         TenantID
	PaymentReference string
	AmountMinorUnits AmountMinorUnits
	Reason           string
	IdempotencyKey   string
}

// RefundReceipt is the collaborator's confirmation of an executed refund.
type RefundReceipt struct {
	RefundID         string
	AmountMinorUnits int64
}

// RefundInput describes a refund request against a captured payment.
// RefundReference is an optional caller-supplied token naming this particular
// refund; when set, retries carrying the same reference collapse onto one
// processor refund regardless of what posted in between.
type RefundInput struct {
	TenantID         TenantID
	PaymentReference string
	AmountMinorUnits AmountMinorUnits
	Reason           string
	RefundReference  string
}

// RefundResult reports the executed refund and its ledger posting.
type RefundResult struct {
	RefundID         string
	PostingGroupID   PostingGroupID
	AmountMinorUnits AmountMinorUnits
	Replayed         bool
}

// RefundEngine checks eligibility, executes the refund with the processor,
// then posts the reversing pair. A processor failure leaves the ledger
// untouched; the posting's dedupe key is derived from the processor refund id
// so duplicate webhook deliveries collapse onto one entry.
type RefundEngine struct {
	service        *Service
	processor      RefundProcessor
	cashAccount    AccountCode
	revenueAccount AccountCode
}

// NewRefundEngine wires a RefundEngine. Zero-value account codes fall back to
// the default cash and site-revenue accounts.
func NewRefundEngine(service *Service, processor RefundProcessor, cashAccount AccountCode, revenueAccount AccountCode) (*RefundEngine, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: service dependency is nil", ErrInvalidServiceConfig)
	}
	if processor == nil {
		return nil, fmt.Errorf("%w: processor dependency is nil", ErrInvalidServiceConfig)
	}
	if cashAccount.value == "" {
		cashAccount = AccountCode{value: DefaultCashAccountCode}
	}
	if revenueAccount.value == "" {
		revenueAccount = AccountCode{value: DefaultSiteRevenueAccountCode}
	}
	if _, err := service.registry.Resolve(cashAccount); err != nil {
		return nil, err
	}
	if _, err := service.registry.Resolve(revenueAccount); err != nil {
		return nil, err
	}
	return &RefundEngine{
		service:        service,
		processor:      processor,
		cashAccount:    cashAccount,
		revenueAccount: revenueAccount,
	}, nil
}

// Refund refunds part or all of a captured payment.
func (engine *RefundEngine) Refund(ctx context.Context, input RefundInput) (RefundResult, error) {
	result, operationError := engine.refund(ctx, input)
	if engine.service.logger != nil {
		entry := OperationLog{
			Operation:    operationRefund,
			TenantID:     input.TenantID,
			CreditsMinor: input.AmountMinorUnits.Int64(),
			Replayed:     result.Replayed,
			Error:        operationError,
			Status:       operationStatusOK,
		}
		if operationError != nil {
			entry.Status = operationStatusError
		}
		engine.service.logger.LogOperation(ctx, entry)
	}
	return result, operationError
}

func (engine *RefundEngine) refund(ctx context.Context, input RefundInput) (RefundResult, error) {
	if input.TenantID.value == "" {
		return RefundResult{}, fmt.Errorf("%w: tenant id required", ErrInvalidTenantID)
	}
	if input.PaymentReference == "" {
		return RefundResult{}, WrapError(operationRefund, "payment", "missing_reference", ErrNotFound)
	}
	if input.AmountMinorUnits <= 0 {
		return RefundResult{}, fmt.Errorf("%w: refund amount", ErrInvalidAmount)
	}

	totals, err := engine.service.store.SourceTotals(ctx, input.TenantID, engine.cashAccount, input.PaymentReference)
	if err != nil {
		return RefundResult{}, err
	}
	refundable := totals.CapturedMinorUnits - totals.RefundedMinorUnits
	if input.AmountMinorUnits.Int64() > refundable {
		return RefundResult{}, fmt.Errorf("%w: requested %d, refundable %d",
			ErrRefundExceedsCaptured, input.AmountMinorUnits.Int64(), refundable)
	}

	receipt, err := engine.processor.ExecuteRefund(ctx, RefundExecution{
		TenantID:         input.TenantID,
		PaymentReference: input.PaymentReference,
		AmountMinorUnits: input.AmountMinorUnits,
		Reason:           input.Reason,
		IdempotencyKey:   refundProcessorKey(input, totals.RefundedMinorUnits),
	})
	if err != nil {
		// Nothing was committed; the caller retries with the same reference.
		return RefundResult{}, WrapError(operationRefund, "processor", "execute", err)
	}

	dedupeKey, err := NewDedupeKey(receipt.RefundID + dedupeKeyDelimiter + dedupeSuffixRefund)
	if err != nil {
		return RefundResult{}, err
	}
	groupID, err := NewPostingGroupID("rfnd_" + receipt.RefundID)
	if err != nil {
		return RefundResult{}, err
	}
	cashLeg, err := NewLeg(engine.cashAccount, DirectionCredit, input.AmountMinorUnits)
	if err != nil {
		return RefundResult{}, err
	}
	revenueLeg, err := NewLeg(engine.revenueAccount, DirectionDebit, input.AmountMinorUnits)
	if err != nil {
		return RefundResult{}, err
	}
	postingResult, err := engine.service.Post(ctx, PostingInput{
		TenantID:        input.TenantID,
		PostingGroupID:  groupID,
		DedupeKey:       dedupeKey,
		Legs:            []Leg{revenueLeg, cashLeg},
		SourceReference: input.PaymentReference,
	})
	if err != nil {
		return RefundResult{}, err
	}
	return RefundResult{
		RefundID:         receipt.RefundID,
		PostingGroupID:   postingResult.PostingGroupID,
		AmountMinorUnits: input.AmountMinorUnits,
		Replayed:         postingResult.Replayed,
	}, nil
}

// refundProcessorKey derives the idempotency key sent to the processor. A
// caller-supplied reference pins the key to that exact request. Otherwise the
// refunded-so-far total scopes the key to this step of the refund sequence: a
// retry whose posting never landed recomputes the same key and replays the
// processor receipt, while each subsequent partial refund gets a fresh key.
func refundProcessorKey(input RefundInput, refundedSoFarMinorUnits int64) string {
	if input.RefundReference != "" {
		return strings.Join([]string{
			input.PaymentReference,
			dedupeSuffixRefund,
			input.RefundReference,
		}, dedupeKeyDelimiter)
	}
	return strings.Join([]string{
		input.PaymentReference,
		dedupeSuffixRefund,
		strconv.FormatInt(refundedSoFarMinorUnits, 10),
		strconv.FormatInt(input.AmountMinorUnits.Int64(), 10),
	}, dedupeKeyDelimiter)
}
