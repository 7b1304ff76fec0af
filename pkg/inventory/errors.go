package inventory

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the inventory core.
var (
	ErrInvalidWindow        = errors.New("invalid window")
	ErrBlockConflict        = errors.New("block conflict")
	ErrNotFound             = errors.New("not found")
	ErrDuplicateLockID      = errors.New("duplicate lock id")
	ErrReservationLinked    = errors.New("reservation already linked")
	ErrInvalidTenantID      = errors.New("invalid tenant id")
	ErrInvalidSiteID        = errors.New("invalid site id")
	ErrInvalidBlockID       = errors.New("invalid block id")
	ErrInvalidLockID        = errors.New("invalid lock id")
	ErrInvalidReason        = errors.New("invalid block reason")
	ErrInvalidGroupID       = errors.New("invalid group id")
	ErrInvalidReservationID = errors.New("invalid reservation id")
	ErrInvalidGroupRole     = errors.New("invalid group role")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
