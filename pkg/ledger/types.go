package ledger

import (
	"fmt"
	"strings"
	"time"
)

// TenantID scopes every ledger row to one campground operator.
type TenantID struct {
	value string
}

// AccountCode identifies a general-ledger account (e.g. "1000" for Cash).
type AccountCode struct {
	value string
}

// DedupeKey scopes duplicate detection for one economic event per tenant.
type DedupeKey struct {
	value string
}

// PostingGroupID ties the legs of one transaction together.
type PostingGroupID struct {
	value string
}

// NewTenantID validates and normalizes a tenant id.
func NewTenantID(raw string) (TenantID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TenantID{}, fmt.Errorf("%w: empty value", ErrInvalidTenantID)
	}
	return TenantID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TenantID) String() string {
	return id.value
}

// NewAccountCode validates and normalizes an account code.
func NewAccountCode(raw string) (AccountCode, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountCode{}, fmt.Errorf("%w: empty value", ErrInvalidAccountCode)
	}
	return AccountCode{value: trimmed}, nil
}

// String returns the normalized code.
func (code AccountCode) String() string {
	return code.value
}

// NewDedupeKey validates and normalizes a dedupe key.
func NewDedupeKey(raw string) (DedupeKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DedupeKey{}, fmt.Errorf("%w: empty value", ErrInvalidDedupeKey)
	}
	return DedupeKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key DedupeKey) String() string {
	return key.value
}

// NewPostingGroupID validates and normalizes a posting group id.
func NewPostingGroupID(raw string) (PostingGroupID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PostingGroupID{}, fmt.Errorf("%w: empty value", ErrInvalidPostingGroupID)
	}
	return PostingGroupID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PostingGroupID) String() string {
	return id.value
}

// Direction marks a leg as a debit or a credit.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// ParseDirection validates a direction string.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case DirectionDebit, DirectionCredit:
		return Direction(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
}

// String returns the direction value.
func (direction Direction) String() string {
	return string(direction)
}

// AmountMinorUnits is a strictly positive integer amount in the currency's
// smallest unit.
type AmountMinorUnits int64

// NewAmountMinorUnits validates an amount and ensures it is strictly positive.
func NewAmountMinorUnits(raw int64) (AmountMinorUnits, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return AmountMinorUnits(raw), nil
}

// Int64 returns the raw amount.
func (amount AmountMinorUnits) Int64() int64 {
	return int64(amount)
}

// Leg is one validated debit or credit line of a posting.
type Leg struct {
	accountCode AccountCode
	direction   Direction
	amount      AmountMinorUnits
}

// NewLeg validates a posting leg.
func NewLeg(accountCode AccountCode, direction Direction, amount AmountMinorUnits) (Leg, error) {
	if accountCode.value == "" {
		return Leg{}, fmt.Errorf("%w: leg account code", ErrInvalidAccountCode)
	}
	if _, err := ParseDirection(direction.String()); err != nil {
		return Leg{}, err
	}
	if amount <= 0 {
		return Leg{}, fmt.Errorf("%w: leg amount", ErrInvalidAmount)
	}
	return Leg{accountCode: accountCode, direction: direction, amount: amount}, nil
}

// AccountCode returns the leg's account.
func (leg Leg) AccountCode() AccountCode {
	return leg.accountCode
}

// Direction returns the leg's direction.
func (leg Leg) Direction() Direction {
	return leg.direction
}

// Amount returns the leg's amount.
func (leg Leg) Amount() AmountMinorUnits {
	return leg.amount
}

// PostingInput describes one transaction to commit.
type PostingInput struct {
	TenantID          TenantID
	PostingGroupID    PostingGroupID
	DedupeKey         DedupeKey
	Legs              []Leg
	OccurredAtUnixUTC int64
	SourceReference   string
	ReservationRef    string
	GuestRef          string
	MetadataJSON      string
}

// Posting is a committed group with its legs, as stored.
type Posting struct {
	PostingGroupID       PostingGroupID
	TenantID             TenantID
	DedupeKey            DedupeKey
	UnbalancedAdjustment bool
	ApprovedBy           string
	SourceReference      string
	ReservationRef       string
	GuestRef             string
	MetadataJSON         string
	OccurredAtUnixUTC    int64
	CreatedUnixUTC       int64
	Legs                 []Entry
}

// Entry is a single immutable debit or credit row in the ledger.
type Entry struct {
	EntryID           string
	PostingGroupID    PostingGroupID
	TenantID          TenantID
	AccountCode       AccountCode
	Direction         Direction
	AmountMinorUnits  AmountMinorUnits
	OccurredAtUnixUTC int64
	CreatedUnixUTC    int64
}

// PostingResult reports the outcome of a Post call. Replayed is true when the
// dedupe key had already been committed and the stored result was returned.
type PostingResult struct {
	PostingGroupID PostingGroupID
	Replayed       bool
	CommittedUnix  int64
}

// EntryFilter selects ledger entries for the paginated query API.
type EntryFilter struct {
	ReservationRef string
	GuestRef       string
	BeforeUnixUTC  int64
	Limit          int
}

// SourceTotals aggregates captured and refunded cash against one payment
// reference.
type SourceTotals struct {
	CapturedMinorUnits int64
	RefundedMinorUnits int64
}

// Period is a half-open UTC time window [Start, End).
type Period struct {
	startUnixUTC int64
	endUnixUTC   int64
}

// NewPeriod validates a half-open window.
func NewPeriod(startUnixUTC, endUnixUTC int64) (Period, error) {
	if startUnixUTC >= endUnixUTC {
		return Period{}, fmt.Errorf("%w: start must precede end", ErrInvalidPeriod)
	}
	return Period{startUnixUTC: startUnixUTC, endUnixUTC: endUnixUTC}, nil
}

// ParsePeriod parses a calendar month in "2006-01" form into its UTC window.
func ParsePeriod(raw string) (Period, error) {
	monthStart, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	start := monthStart.UTC()
	end := start.AddDate(0, 1, 0)
	return Period{startUnixUTC: start.Unix(), endUnixUTC: end.Unix()}, nil
}

// StartUnixUTC returns the inclusive window start.
func (period Period) StartUnixUTC() int64 {
	return period.startUnixUTC
}

// EndUnixUTC returns the exclusive window end.
func (period Period) EndUnixUTC() int64 {
	return period.endUnixUTC
}

// ReconciliationStatus is the outcome of comparing ledger cash against
// processor payouts.
type ReconciliationStatus string

const (
	ReconciliationStatusReconciled  ReconciliationStatus = "reconciled"
	ReconciliationStatusDiscrepancy ReconciliationStatus = "discrepancy"
)

// ReconciliationReport is reported as data; discrepancies are never
// auto-corrected.
type ReconciliationReport struct {
	TenantID                  TenantID
	Period                    Period
	LedgerCashMinorUnits      int64
	ProcessorPayoutMinorUnits int64
	DiscrepancyMinorUnits     int64
	Status                    ReconciliationStatus
}

func sumByDirection(legs []Leg) (debits int64, credits int64) {
	for _, leg := range legs {
		switch leg.direction {
		case DirectionDebit:
			debits += leg.amount.Int64()
		case DirectionCredit:
			credits += leg.amount.Int64()
		}
	}
	return debits, credits
}
