package inventory

import "context"

// ManagerOption configures a Manager instance.
type ManagerOption func(*Manager)

// OperationLogger records domain-level events emitted by inventory operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing inventory operation.
type OperationLog struct {
	Operation string
	TenantID  TenantID
	BlockID   BlockID
	LockID    LockID
	GroupID   GroupID
	SiteCount int
	Replayed  bool
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ManagerOption {
	return func(manager *Manager) {
		manager.logger = logger
	}
}
