package inventory

const (
	operationCreateBlock  = "create_block"
	operationReleaseBlock = "release_block"
	operationAvailability = "availability"
	operationCreateGroup  = "create_group"
	operationLink         = "link_reservation"
	operationUnlink       = "unlink_reservation"
	operationDeleteGroup  = "delete_group"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	conflictSourceBlock       = "block"
	conflictSourceReservation = "reservation"
)
