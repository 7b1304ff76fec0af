package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by ledger operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation      string
	TenantID       TenantID
	PostingGroupID PostingGroupID
	DedupeKey      DedupeKey
	DebitsMinor    int64
	CreditsMinor   int64
	Replayed       bool
	Status         string
	Error          error
}

// CommitListener receives committed postings, e.g. to feed reconciliation
// tooling. Replayed postings are not re-emitted.
type CommitListener interface {
	PostingCommitted(ctx context.Context, posting Posting)
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithCommitListener wires a listener invoked after each committed posting.
func WithCommitListener(listener CommitListener) ServiceOption {
	return func(service *Service) {
		service.commitListener = listener
	}
}

// CommitListenerFunc adapts a function to the CommitListener interface.
type CommitListenerFunc func(ctx context.Context, posting Posting)

// PostingCommitted invokes the wrapped function.
func (fn CommitListenerFunc) PostingCommitted(ctx context.Context, posting Posting) {
	fn(ctx, posting)
}
