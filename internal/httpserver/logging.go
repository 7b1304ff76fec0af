package httpserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/campreserv/core/pkg/inventory"
	"github.com/campreserv/core/pkg/ledger"
)

// ledgerZapLogger bridges ledger operation callbacks to zap.
type ledgerZapLogger struct {
	logger *zap.Logger
}

// NewLedgerOperationLogger returns a ledger.OperationLogger writing to zap.
func NewLedgerOperationLogger(logger *zap.Logger) ledger.OperationLogger {
	return ledgerZapLogger{logger: logger}
}

func (bridge ledgerZapLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("posting_group_id", entry.PostingGroupID.String()),
		zap.String("dedupe_key", entry.DedupeKey.String()),
		zap.Int64("debits_minor", entry.DebitsMinor),
		zap.Int64("credits_minor", entry.CreditsMinor),
		zap.Bool("replayed", entry.Replayed),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		bridge.logger.Warn("ledger operation", append(fields, zap.Error(entry.Error))...)
		return
	}
	bridge.logger.Info("ledger operation", fields...)
}

// NewLedgerCommitListener returns a ledger.CommitListener that records every
// committed posting group to zap. Replays do not reach the listener.
func NewLedgerCommitListener(logger *zap.Logger) ledger.CommitListener {
	return ledger.CommitListenerFunc(func(_ context.Context, posting ledger.Posting) {
		logger.Info("posting committed",
			zap.String("tenant_id", posting.TenantID.String()),
			zap.String("posting_group_id", posting.PostingGroupID.String()),
			zap.String("dedupe_key", posting.DedupeKey.String()),
			zap.String("source_reference", posting.SourceReference),
			zap.Int("legs", len(posting.Legs)),
		)
	})
}

// inventoryZapLogger bridges inventory operation callbacks to zap.
type inventoryZapLogger struct {
	logger *zap.Logger
}

// NewInventoryOperationLogger returns an inventory.OperationLogger writing to
// zap.
func NewInventoryOperationLogger(logger *zap.Logger) inventory.OperationLogger {
	return inventoryZapLogger{logger: logger}
}

func (bridge inventoryZapLogger) LogOperation(_ context.Context, entry inventory.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("block_id", entry.BlockID.String()),
		zap.String("lock_id", entry.LockID.String()),
		zap.String("group_id", entry.GroupID.String()),
		zap.Int("site_count", entry.SiteCount),
		zap.Bool("replayed", entry.Replayed),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		bridge.logger.Warn("inventory operation", append(fields, zap.Error(entry.Error))...)
		return
	}
	bridge.logger.Info("inventory operation", fields...)
}
