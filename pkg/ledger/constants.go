package ledger

const (
	operationPost      = "post"
	operationAdjust    = "adjust"
	operationRefund    = "refund"
	operationReconcile = "reconcile"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	dedupeKeyDelimiter = ":"
	dedupeSuffixRefund = "refund"

	defaultEntryListLimit = 50
	maxEntryListLimit     = 200
)
