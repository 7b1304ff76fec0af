package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

var testSecret = []byte("whsec_test")

func TestParseEventPaymentSucceeded(t *testing.T) {
	t.Parallel()
	payload := []byte(`{
		"id": "evt_1",
		"type": "payment.succeeded",
		"created": 1751500800,
		"data": {
			"tenant_id": "tenant-1",
			"payment_id": "pay_123",
			"amount_minor_units": 12500,
			"reservation_id": "res-9",
			"guest_id": "guest-4"
		}
	}`)

	event, err := ParseEvent(payload, sign(payload), testSecret)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	payment, ok := event.(PaymentSucceeded)
	if !ok {
		t.Fatalf("expected PaymentSucceeded, got %T", event)
	}
	if payment.EventID() != "evt_1" || payment.PaymentID != "pay_123" || payment.AmountMinorUnits != 12500 {
		t.Fatalf("unexpected event: %+v", payment)
	}
	if payment.OccurredAtUnixUTC != 1751500800 {
		t.Fatalf("expected occurred at from envelope, got %d", payment.OccurredAtUnixUTC)
	}
	if payment.ReservationRef != "res-9" || payment.GuestRef != "guest-4" {
		t.Fatalf("expected booking references carried, got %+v", payment)
	}
}

func TestParseEventRefundSucceeded(t *testing.T) {
	t.Parallel()
	payload := []byte(`{
		"id": "evt_2",
		"type": "refund.succeeded",
		"created": 1751587200,
		"data": {
			"tenant_id": "tenant-1",
			"refund_id": "re_77",
			"payment_id": "pay_123",
			"amount_minor_units": 2500
		}
	}`)

	event, err := ParseEvent(payload, sign(payload), testSecret)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	refund, ok := event.(RefundSucceeded)
	if !ok {
		t.Fatalf("expected RefundSucceeded, got %T", event)
	}
	if refund.RefundID != "re_77" || refund.PaymentID != "pay_123" {
		t.Fatalf("unexpected event: %+v", refund)
	}
}

func TestParseEventPayoutCreated(t *testing.T) {
	t.Parallel()
	payload := []byte(`{
		"id": "evt_3",
		"type": "payout.created",
		"created": 1751673600,
		"data": {"tenant_id": "tenant-1", "payout_id": "po_5", "amount_minor_units": 48000}
	}`)

	event, err := ParseEvent(payload, sign(payload), testSecret)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	payout, ok := event.(PayoutCreated)
	if !ok {
		t.Fatalf("expected PayoutCreated, got %T", event)
	}
	if payout.PayoutID != "po_5" || payout.AmountMinorUnits != 48000 {
		t.Fatalf("unexpected event: %+v", payout)
	}
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"id": "evt_4", "type": "payment.succeeded", "data": {}}`)

	_, err := ParseEvent(payload, sign([]byte("different payload")), testSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	_, err = ParseEvent(payload, "not-hex", testSecret)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for non-hex header, got %v", err)
	}
}

func TestParseEventUnknownType(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"id": "evt_5", "type": "customer.updated", "data": {}}`)

	_, err := ParseEvent(payload, sign(payload), testSecret)
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestParseEventMalformedPayload(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"type": "payment.succeeded"`)
	_, err := ParseEvent(payload, sign(payload), testSecret)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}

	missingID := []byte(`{"type": "payment.succeeded", "data": {}}`)
	_, err = ParseEvent(missingID, sign(missingID), testSecret)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for missing id, got %v", err)
	}
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, testSecret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
