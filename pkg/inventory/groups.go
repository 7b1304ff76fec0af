package inventory

import (
	"context"
	"fmt"
)

// Coordinator links reservations under a shared-payment/shared-communication
// group. Reservations belong to the booking subsystem and are referenced by
// id only; deleting a group unlinks them, never deletes them.
type Coordinator struct {
	store  Store
	nowFn  func() int64
	newID  func() string
	logger OperationLogger
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(store Store, now func() int64, newID func() string, options ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if newID == nil {
		return nil, fmt.Errorf("%w: id generator dependency is nil", ErrInvalidServiceConfig)
	}
	coordinator := &Coordinator{store: store, nowFn: now, newID: newID}
	for _, option := range options {
		if option != nil {
			option(coordinator)
		}
	}
	return coordinator, nil
}

// CoordinatorOption configures a Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger wires a logger that receives callbacks for every operation.
func WithCoordinatorLogger(logger OperationLogger) CoordinatorOption {
	return func(coordinator *Coordinator) {
		coordinator.logger = logger
	}
}

// CreateGroup creates an empty group.
func (coordinator *Coordinator) CreateGroup(ctx context.Context, tenantID TenantID, sharedPayment bool, sharedComm bool) (Group, error) {
	if tenantID.value == "" {
		return Group{}, fmt.Errorf("%w: tenant id required", ErrInvalidTenantID)
	}
	group := Group{
		GroupID:        GroupID{value: coordinator.newID()},
		TenantID:       tenantID,
		SharedPayment:  sharedPayment,
		SharedComm:     sharedComm,
		CreatedUnixUTC: coordinator.nowFn(),
	}
	operationError := coordinator.store.InsertGroup(ctx, group)
	coordinator.logOperation(ctx, OperationLog{
		Operation: operationCreateGroup,
		TenantID:  tenantID,
		GroupID:   group.GroupID,
		Error:     operationError,
	})
	if operationError != nil {
		return Group{}, operationError
	}
	return group, nil
}

// Group returns a group by id.
func (coordinator *Coordinator) Group(ctx context.Context, tenantID TenantID, groupID GroupID) (Group, error) {
	return coordinator.store.GetGroup(ctx, tenantID, groupID)
}

// Members lists the reservations linked into a group.
func (coordinator *Coordinator) Members(ctx context.Context, tenantID TenantID, groupID GroupID) ([]GroupMember, error) {
	if _, err := coordinator.store.GetGroup(ctx, tenantID, groupID); err != nil {
		return nil, err
	}
	return coordinator.store.ListGroupMembers(ctx, tenantID, groupID)
}

// LinkReservation attaches a reservation reference to a group with a role.
func (coordinator *Coordinator) LinkReservation(ctx context.Context, tenantID TenantID, groupID GroupID, reservationID ReservationID, role GroupRole) error {
	operationError := coordinator.linkReservation(ctx, tenantID, groupID, reservationID, role)
	coordinator.logOperation(ctx, OperationLog{
		Operation: operationLink,
		TenantID:  tenantID,
		GroupID:   groupID,
		Error:     operationError,
	})
	return operationError
}

func (coordinator *Coordinator) linkReservation(ctx context.Context, tenantID TenantID, groupID GroupID, reservationID ReservationID, role GroupRole) error {
	if reservationID.value == "" {
		return fmt.Errorf("%w: reservation id required", ErrInvalidReservationID)
	}
	if _, err := ParseGroupRole(role.String()); err != nil {
		return err
	}
	return coordinator.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetGroup(ctx, tenantID, groupID); err != nil {
			return err
		}
		return transactionStore.LinkReservation(ctx, tenantID, groupID, reservationID, role)
	})
}

// UnlinkReservation detaches a reservation reference from a group.
func (coordinator *Coordinator) UnlinkReservation(ctx context.Context, tenantID TenantID, groupID GroupID, reservationID ReservationID) error {
	operationError := coordinator.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetGroup(ctx, tenantID, groupID); err != nil {
			return err
		}
		return transactionStore.UnlinkReservation(ctx, tenantID, groupID, reservationID)
	})
	coordinator.logOperation(ctx, OperationLog{
		Operation: operationUnlink,
		TenantID:  tenantID,
		GroupID:   groupID,
		Error:     operationError,
	})
	return operationError
}

// DeleteGroup unlinks every member reservation, then removes the group.
// Reservations are never deleted as a side effect.
func (coordinator *Coordinator) DeleteGroup(ctx context.Context, tenantID TenantID, groupID GroupID) error {
	operationError := coordinator.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetGroup(ctx, tenantID, groupID); err != nil {
			return err
		}
		if err := transactionStore.UnlinkAllReservations(ctx, tenantID, groupID); err != nil {
			return err
		}
		return transactionStore.DeleteGroup(ctx, tenantID, groupID)
	})
	coordinator.logOperation(ctx, OperationLog{
		Operation: operationDeleteGroup,
		TenantID:  tenantID,
		GroupID:   groupID,
		Error:     operationError,
	})
	return operationError
}

func (coordinator *Coordinator) logOperation(ctx context.Context, entry OperationLog) {
	if coordinator.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	coordinator.logger.LogOperation(ctx, entry)
}
