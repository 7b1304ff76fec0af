package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campreserv/core/pkg/ledger"
)

type legPayload struct {
	AccountCode      string `json:"account_code"`
	Direction        string `json:"direction"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
}

type postingRequest struct {
	PostingGroupID  string          `json:"posting_group_id"`
	DedupeKey       string          `json:"dedupe_key"`
	Legs            []legPayload    `json:"legs"`
	OccurredAt      int64           `json:"occurred_at,omitempty"`
	SourceReference string          `json:"source_reference,omitempty"`
	ReservationRef  string          `json:"reservation_id,omitempty"`
	GuestRef        string          `json:"guest_id,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

type postingResponse struct {
	PostingGroupID string `json:"posting_group_id"`
	Replayed       bool   `json:"replayed"`
	CommittedAt    int64  `json:"committed_at"`
}

func (server *Server) handlePostPosting(ctx *gin.Context) {
	input, ok := server.bindPostingInput(ctx)
	if !ok {
		return
	}
	result, err := server.ledger.Post(ctx.Request.Context(), input)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, postingResponse{
		PostingGroupID: result.PostingGroupID.String(),
		Replayed:       result.Replayed,
		CommittedAt:    result.CommittedUnix,
	})
}

// Adjustments may be unbalanced; the approving operator is the authenticated
// caller, recorded on the posting group.
func (server *Server) handlePostAdjustment(ctx *gin.Context) {
	input, ok := server.bindPostingInput(ctx)
	if !ok {
		return
	}
	claims := getClaims(ctx)
	result, err := server.ledger.PostAdjustment(ctx.Request.Context(), input, claims.Subject)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, postingResponse{
		PostingGroupID: result.PostingGroupID.String(),
		Replayed:       result.Replayed,
		CommittedAt:    result.CommittedUnix,
	})
}

func (server *Server) bindPostingInput(ctx *gin.Context) (ledger.PostingInput, bool) {
	var request postingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return ledger.PostingInput{}, false
	}
	tenantID, err := ledger.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return ledger.PostingInput{}, false
	}
	groupID, err := ledger.NewPostingGroupID(request.PostingGroupID)
	if err != nil {
		server.respondError(ctx, err)
		return ledger.PostingInput{}, false
	}
	dedupeKey, err := ledger.NewDedupeKey(request.DedupeKey)
	if err != nil {
		server.respondError(ctx, err)
		return ledger.PostingInput{}, false
	}
	legs := make([]ledger.Leg, 0, len(request.Legs))
	for _, payload := range request.Legs {
		accountCode, err := ledger.NewAccountCode(payload.AccountCode)
		if err != nil {
			server.respondError(ctx, err)
			return ledger.PostingInput{}, false
		}
		direction, err := ledger.ParseDirection(payload.Direction)
		if err != nil {
			server.respondError(ctx, err)
			return ledger.PostingInput{}, false
		}
		amount, err := ledger.NewAmountMinorUnits(payload.AmountMinorUnits)
		if err != nil {
			server.respondError(ctx, err)
			return ledger.PostingInput{}, false
		}
		leg, err := ledger.NewLeg(accountCode, direction, amount)
		if err != nil {
			server.respondError(ctx, err)
			return ledger.PostingInput{}, false
		}
		legs = append(legs, leg)
	}
	return ledger.PostingInput{
		TenantID:          tenantID,
		PostingGroupID:    groupID,
		DedupeKey:         dedupeKey,
		Legs:              legs,
		OccurredAtUnixUTC: request.OccurredAt,
		SourceReference:   request.SourceReference,
		ReservationRef:    request.ReservationRef,
		GuestRef:          request.GuestRef,
		MetadataJSON:      string(request.Metadata),
	}, true
}

type entryPayload struct {
	EntryID          string `json:"entry_id"`
	PostingGroupID   string `json:"posting_group_id"`
	AccountCode      string `json:"account_code"`
	Direction        string `json:"direction"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	OccurredAt       int64  `json:"occurred_at"`
	CreatedAt        int64  `json:"created_at"`
}

func (server *Server) handleListEntries(ctx *gin.Context) {
	tenantID, err := ledger.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	cursor, _ := strconv.ParseInt(ctx.Query("cursor"), 10, 64)
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	entries, err := server.ledger.Entries(ctx.Request.Context(), tenantID, ledger.EntryFilter{
		ReservationRef: ctx.Query("reservationId"),
		GuestRef:       ctx.Query("guestId"),
		BeforeUnixUTC:  cursor,
		Limit:          limit,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]entryPayload, 0, len(entries))
	var nextCursor int64
	for _, entry := range entries {
		payloads = append(payloads, entryPayload{
			EntryID:          entry.EntryID,
			PostingGroupID:   entry.PostingGroupID.String(),
			AccountCode:      entry.AccountCode.String(),
			Direction:        entry.Direction.String(),
			AmountMinorUnits: entry.AmountMinorUnits.Int64(),
			OccurredAt:       entry.OccurredAtUnixUTC,
			CreatedAt:        entry.CreatedUnixUTC,
		})
		nextCursor = entry.CreatedUnixUTC
	}
	ctx.JSON(http.StatusOK, gin.H{
		"entries":     payloads,
		"next_cursor": nextCursor,
	})
}

func (server *Server) handleReconciliation(ctx *gin.Context) {
	tenantID, err := ledger.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	period, err := ledger.ParsePeriod(ctx.Query("period"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	report, err := server.reconciler.Reconcile(ctx.Request.Context(), tenantID, period)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"period":                       ctx.Query("period"),
		"ledger_cash_minor_units":      report.LedgerCashMinorUnits,
		"processor_payout_minor_units": report.ProcessorPayoutMinorUnits,
		"discrepancy_minor_units":      report.DiscrepancyMinorUnits,
		"status":                       string(report.Status),
	})
}

type refundRequest struct {
	PaymentReference string `json:"payment_reference"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Reason           string `json:"reason,omitempty"`
	RefundReference  string `json:"refund_reference,omitempty"`
}

func (server *Server) handleRefund(ctx *gin.Context) {
	var request refundRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	tenantID, err := ledger.NewTenantID(getClaims(ctx).TenantID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	amount, err := ledger.NewAmountMinorUnits(request.AmountMinorUnits)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	result, err := server.refunds.Refund(ctx.Request.Context(), ledger.RefundInput{
		TenantID:         tenantID,
		PaymentReference: request.PaymentReference,
		AmountMinorUnits: amount,
		Reason:           request.Reason,
		RefundReference:  request.RefundReference,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"refund_id":          result.RefundID,
		"posting_group_id":   result.PostingGroupID.String(),
		"amount_minor_units": result.AmountMinorUnits.Int64(),
		"replayed":           result.Replayed,
	})
}
