package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger core.
var (
	ErrUnknownAccount        = errors.New("unknown account")
	ErrInvalidAmount         = errors.New("invalid amount minor units")
	ErrUnbalancedPosting     = errors.New("unbalanced posting")
	ErrDuplicatePosting      = errors.New("duplicate posting")
	ErrRefundExceedsCaptured = errors.New("refund exceeds captured amount")
	ErrNotFound              = errors.New("not found")
	ErrInvalidTenantID       = errors.New("invalid tenant id")
	ErrInvalidAccountCode    = errors.New("invalid account code")
	ErrInvalidDedupeKey      = errors.New("invalid dedupe key")
	ErrInvalidPostingGroupID = errors.New("invalid posting group id")
	ErrInvalidDirection      = errors.New("invalid direction")
	ErrInvalidLegs           = errors.New("invalid posting legs")
	ErrInvalidPeriod         = errors.New("invalid period")
	ErrInvalidChart          = errors.New("invalid chart of accounts")
	ErrInvalidMetadata       = errors.New("invalid metadata json")
	ErrAdjustmentNotApproved = errors.New("adjustment not approved")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
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
