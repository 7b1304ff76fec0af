package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campreserv/core/pkg/inventory"
	"github.com/campreserv/core/pkg/ledger"
)

// statusMapping ties a domain sentinel to its HTTP status and stable code.
type statusMapping struct {
	sentinel error
	status   int
	code     string
}

// Conflict-class failures are 409 so clients can distinguish "fix your
// request" from "the world disagrees with you".
var statusMappings = []statusMapping{
	{ledger.ErrUnbalancedPosting, http.StatusConflict, "unbalanced_posting"},
	{ledger.ErrUnknownAccount, http.StatusConflict, "unknown_account"},
	{ledger.ErrInvalidAmount, http.StatusConflict, "invalid_amount"},
	{ledger.ErrRefundExceedsCaptured, http.StatusConflict, "refund_exceeds_captured"},
	{ledger.ErrAdjustmentNotApproved, http.StatusForbidden, "adjustment_not_approved"},
	{ledger.ErrNotFound, http.StatusNotFound, "not_found"},
	{ledger.ErrInvalidTenantID, http.StatusBadRequest, "invalid_tenant"},
	{ledger.ErrInvalidDedupeKey, http.StatusBadRequest, "invalid_dedupe_key"},
	{ledger.ErrInvalidPostingGroupID, http.StatusBadRequest, "invalid_posting_group_id"},
	{ledger.ErrInvalidAccountCode, http.StatusBadRequest, "invalid_account_code"},
	{ledger.ErrInvalidDirection, http.StatusBadRequest, "invalid_direction"},
	{ledger.ErrInvalidLegs, http.StatusBadRequest, "invalid_legs"},
	{ledger.ErrInvalidMetadata, http.StatusBadRequest, "invalid_metadata"},
	{ledger.ErrInvalidPeriod, http.StatusBadRequest, "invalid_period"},

	{inventory.ErrBlockConflict, http.StatusConflict, "block_conflict"},
	{inventory.ErrReservationLinked, http.StatusConflict, "reservation_linked"},
	{inventory.ErrNotFound, http.StatusNotFound, "not_found"},
	{inventory.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{inventory.ErrInvalidTenantID, http.StatusBadRequest, "invalid_tenant"},
	{inventory.ErrInvalidSiteID, http.StatusBadRequest, "invalid_site"},
	{inventory.ErrInvalidLockID, http.StatusBadRequest, "invalid_lock_id"},
	{inventory.ErrInvalidReason, http.StatusBadRequest, "invalid_reason"},
	{inventory.ErrInvalidGroupID, http.StatusBadRequest, "invalid_group_id"},
	{inventory.ErrInvalidReservationID, http.StatusBadRequest, "invalid_reservation_id"},
	{inventory.ErrInvalidGroupRole, http.StatusBadRequest, "invalid_group_role"},
}

func (server *Server) respondError(ctx *gin.Context, err error) {
	for _, mapping := range statusMappings {
		if errors.Is(err, mapping.sentinel) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, err.Error()))
			return
		}
	}
	server.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
