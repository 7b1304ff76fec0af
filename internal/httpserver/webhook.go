package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campreserv/core/pkg/ledger"
	"github.com/campreserv/core/pkg/payments"
)

const webhookSignatureHeader = "X-Webhook-Signature"

// handleWebhook ingests processor notifications. Delivery is at-least-once:
// dedupe keys derived from the processor ids make redelivered events replay
// instead of double-posting. Unknown event types are acknowledged so the
// processor stops retrying them.
func (server *Server) handleWebhook(ctx *gin.Context) {
	payload, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "unreadable body"))
		return
	}
	event, err := payments.ParseEvent(payload, ctx.GetHeader(webhookSignatureHeader), server.cfg.WebhookSecret)
	if errors.Is(err, payments.ErrInvalidSignature) {
		ctx.JSON(http.StatusUnauthorized, errorResponse("invalid_signature", "signature verification failed"))
		return
	}
	if errors.Is(err, payments.ErrUnknownEventType) {
		server.logger.Info("webhook event skipped", zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"status": "skipped"})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("malformed_event", err.Error()))
		return
	}

	switch typed := event.(type) {
	case payments.PaymentSucceeded:
		err = server.postCapturedPayment(ctx, typed)
	case payments.RefundSucceeded:
		err = server.postRefundedPayment(ctx, typed)
	case payments.PayoutCreated:
		// Payouts are bank-side settlement; reconciliation reads them from
		// the processor API, nothing to post here.
		server.logger.Info("payout webhook acknowledged",
			zap.String("tenant_id", typed.TenantID),
			zap.String("payout_id", typed.PayoutID))
	}
	if err != nil {
		// Non-2xx makes the processor redeliver; the dedupe key keeps the
		// retry safe.
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (server *Server) postCapturedPayment(ctx *gin.Context, event payments.PaymentSucceeded) error {
	tenantID, err := ledger.NewTenantID(event.TenantID)
	if err != nil {
		return err
	}
	dedupeKey, err := ledger.NewDedupeKey(event.PaymentID + ":capture")
	if err != nil {
		return err
	}
	groupID, err := ledger.NewPostingGroupID("pay_" + event.PaymentID)
	if err != nil {
		return err
	}
	amount, err := ledger.NewAmountMinorUnits(event.AmountMinorUnits)
	if err != nil {
		return err
	}
	cashLeg, err := ledger.NewLeg(mustAccountCode(ledger.DefaultCashAccountCode), ledger.DirectionDebit, amount)
	if err != nil {
		return err
	}
	revenueLeg, err := ledger.NewLeg(mustAccountCode(ledger.DefaultSiteRevenueAccountCode), ledger.DirectionCredit, amount)
	if err != nil {
		return err
	}
	result, err := server.ledger.Post(ctx.Request.Context(), ledger.PostingInput{
		TenantID:          tenantID,
		PostingGroupID:    groupID,
		DedupeKey:         dedupeKey,
		Legs:              []ledger.Leg{cashLeg, revenueLeg},
		OccurredAtUnixUTC: event.OccurredAtUnixUTC,
		SourceReference:   event.PaymentID,
		ReservationRef:    event.ReservationRef,
		GuestRef:          event.GuestRef,
	})
	if err != nil {
		return err
	}
	if result.Replayed {
		server.logger.Info("payment webhook replayed",
			zap.String("tenant_id", event.TenantID),
			zap.String("payment_id", event.PaymentID))
	}
	return nil
}

// postRefundedPayment records a refund the processor executed on its own
// (e.g. a dispute). The dedupe key matches the refund engine's derivation, so
// an engine-initiated refund and its webhook confirmation land on one group.
func (server *Server) postRefundedPayment(ctx *gin.Context, event payments.RefundSucceeded) error {
	tenantID, err := ledger.NewTenantID(event.TenantID)
	if err != nil {
		return err
	}
	dedupeKey, err := ledger.NewDedupeKey(event.RefundID + ":refund")
	if err != nil {
		return err
	}
	groupID, err := ledger.NewPostingGroupID("rfnd_" + event.RefundID)
	if err != nil {
		return err
	}
	amount, err := ledger.NewAmountMinorUnits(event.AmountMinorUnits)
	if err != nil {
		return err
	}
	revenueLeg, err := ledger.NewLeg(mustAccountCode(ledger.DefaultSiteRevenueAccountCode), ledger.DirectionDebit, amount)
	if err != nil {
		return err
	}
	cashLeg, err := ledger.NewLeg(mustAccountCode(ledger.DefaultCashAccountCode), ledger.DirectionCredit, amount)
	if err != nil {
		return err
	}
	_, err = server.ledger.Post(ctx.Request.Context(), ledger.PostingInput{
		TenantID:          tenantID,
		PostingGroupID:    groupID,
		DedupeKey:         dedupeKey,
		Legs:              []ledger.Leg{revenueLeg, cashLeg},
		OccurredAtUnixUTC: event.OccurredAtUnixUTC,
		SourceReference:   event.PaymentID,
	})
	return err
}

func mustAccountCode(raw string) ledger.AccountCode {
	code, err := ledger.NewAccountCode(raw)
	if err != nil {
		panic(err)
	}
	return code
}
