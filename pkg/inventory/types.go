package inventory

import (
	"fmt"
	"sort"
	"strings"
)

// TenantID scopes blocks and groups to one campground operator.
type TenantID struct {
	value string
}

// SiteID identifies a physical campsite.
type SiteID struct {
	value string
}

// BlockID identifies a stored block.
type BlockID struct {
	value string
}

// LockID is the caller-supplied idempotency token for block creation.
type LockID struct {
	value string
}

// GroupID identifies a reservation group.
type GroupID struct {
	value string
}

// ReservationID references a reservation owned by the booking subsystem.
type ReservationID struct {
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

// NewSiteID validates and normalizes a site id.
func NewSiteID(raw string) (SiteID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SiteID{}, fmt.Errorf("%w: empty value", ErrInvalidSiteID)
	}
	return SiteID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SiteID) String() string {
	return id.value
}

// NewBlockID validates and normalizes a block id.
func NewBlockID(raw string) (BlockID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BlockID{}, fmt.Errorf("%w: empty value", ErrInvalidBlockID)
	}
	return BlockID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BlockID) String() string {
	return id.value
}

// NewLockID validates and normalizes a lock id.
func NewLockID(raw string) (LockID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return LockID{}, fmt.Errorf("%w: empty value", ErrInvalidLockID)
	}
	return LockID{value: trimmed}, nil
}

// String returns the normalized token.
func (id LockID) String() string {
	return id.value
}

// NewGroupID validates and normalizes a group id.
func NewGroupID(raw string) (GroupID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return GroupID{}, fmt.Errorf("%w: empty value", ErrInvalidGroupID)
	}
	return GroupID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id GroupID) String() string {
	return id.value
}

// NewReservationID validates and normalizes a reservation reference.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// Window is a half-open UTC time interval [Start, End). Touching windows do
// not overlap.
type Window struct {
	startUnixUTC int64
	endUnixUTC   int64
}

// NewWindow validates a half-open window.
func NewWindow(startUnixUTC, endUnixUTC int64) (Window, error) {
	if startUnixUTC >= endUnixUTC {
		return Window{}, fmt.Errorf("%w: start must precede end", ErrInvalidWindow)
	}
	return Window{startUnixUTC: startUnixUTC, endUnixUTC: endUnixUTC}, nil
}

// StartUnixUTC returns the inclusive start.
func (window Window) StartUnixUTC() int64 {
	return window.startUnixUTC
}

// EndUnixUTC returns the exclusive end.
func (window Window) EndUnixUTC() int64 {
	return window.endUnixUTC
}

// Overlaps reports whether two half-open windows share any instant.
func (window Window) Overlaps(other Window) bool {
	return window.startUnixUTC < other.endUnixUTC && other.startUnixUTC < window.endUnixUTC
}

// BlockReason categorizes why sites are held.
type BlockReason string

const (
	BlockReasonGroupHold   BlockReason = "group_hold"
	BlockReasonMaintenance BlockReason = "maintenance"
	BlockReasonOther       BlockReason = "other"
)

// ParseBlockReason validates a block reason string.
func ParseBlockReason(raw string) (BlockReason, error) {
	switch BlockReason(raw) {
	case BlockReasonGroupHold, BlockReasonMaintenance, BlockReasonOther:
		return BlockReason(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReason, raw)
	}
}

// String returns the reason value.
func (reason BlockReason) String() string {
	return string(reason)
}

// BlockState is the block lifecycle state. Blocks start active and are only
// ever released, never deleted.
type BlockState string

const (
	BlockStateActive   BlockState = "active"
	BlockStateReleased BlockState = "released"
)

// String returns the state value.
func (state BlockState) String() string {
	return string(state)
}

// Block is a time-windowed exclusive hold over one or more sites.
type Block struct {
	BlockID         BlockID
	TenantID        TenantID
	LockID          LockID
	SiteIDs         []SiteID
	Window          Window
	Reason          BlockReason
	State           BlockState
	CreatedBy       string
	CreatedUnixUTC  int64
	ReleasedUnixUTC int64
}

// BlockInput describes a hold request.
type BlockInput struct {
	TenantID  TenantID
	SiteIDs   []SiteID
	Window    Window
	Reason    BlockReason
	LockID    LockID
	CreatedBy string
}

// SiteAvailability summarizes whether one site is free over a window.
type SiteAvailability struct {
	SiteID    SiteID
	Available bool
	Conflict  string
}

// GroupRole marks a reservation's role inside a group.
type GroupRole string

const (
	GroupRolePrimary GroupRole = "primary"
	GroupRoleMember  GroupRole = "member"
)

// ParseGroupRole validates a group role string.
func ParseGroupRole(raw string) (GroupRole, error) {
	switch GroupRole(raw) {
	case GroupRolePrimary, GroupRoleMember:
		return GroupRole(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGroupRole, raw)
	}
}

// String returns the role value.
func (role GroupRole) String() string {
	return string(role)
}

// Group links reservations under a shared payment/communication umbrella.
type Group struct {
	GroupID        GroupID
	TenantID       TenantID
	SharedPayment  bool
	SharedComm     bool
	CreatedUnixUTC int64
}

// GroupMember is one reservation linked into a group.
type GroupMember struct {
	ReservationID ReservationID
	Role          GroupRole
}

func normalizeSiteIDs(siteIDs []SiteID) []SiteID {
	seen := make(map[string]struct{}, len(siteIDs))
	normalized := make([]SiteID, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		if siteID.value == "" {
			continue
		}
		if _, duplicate := seen[siteID.value]; duplicate {
			continue
		}
		seen[siteID.value] = struct{}{}
		normalized = append(normalized, siteID)
	}
	sort.Slice(normalized, func(left, right int) bool {
		return normalized[left].value < normalized[right].value
	})
	return normalized
}

func sameSiteIDs(left, right []SiteID) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index].value != right[index].value {
			return false
		}
	}
	return true
}
