package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Webhook errors.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrUnknownEventType = errors.New("unknown webhook event type")
)

// Event is the closed union of webhook notifications the core reacts to.
// Delivery is at-least-once; consumers dedupe on the processor ids carried by
// each variant.
type Event interface {
	EventID() string
	eventType() string
}

// PaymentSucceeded reports a captured charge.
type PaymentSucceeded struct {
	ID                string
	TenantID          string
	PaymentID         string
	AmountMinorUnits  int64
	OccurredAtUnixUTC int64
	ReservationRef    string
	GuestRef          string
}

// EventID returns the delivery id.
func (event PaymentSucceeded) EventID() string { return event.ID }

func (PaymentSucceeded) eventType() string { return eventTypePaymentSucceeded }

// PayoutCreated reports a settlement transfer to the tenant's bank.
type PayoutCreated struct {
	ID                string
	TenantID          string
	PayoutID          string
	AmountMinorUnits  int64
	OccurredAtUnixUTC int64
}

// EventID returns the delivery id.
func (event PayoutCreated) EventID() string { return event.ID }

func (PayoutCreated) eventType() string { return eventTypePayoutCreated }

// RefundSucceeded reports a processor-side refund completion.
type RefundSucceeded struct {
	ID                string
	TenantID          string
	RefundID          string
	PaymentID         string
	AmountMinorUnits  int64
	OccurredAtUnixUTC int64
}

// EventID returns the delivery id.
func (event RefundSucceeded) EventID() string { return event.ID }

func (RefundSucceeded) eventType() string { return eventTypeRefundSucceeded }

const (
	eventTypePaymentSucceeded = "payment.succeeded"
	eventTypePayoutCreated    = "payout.created"
	eventTypeRefundSucceeded  = "refund.succeeded"
)

type eventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt int64           `json:"created"`
	Data      json.RawMessage `json:"data"`
}

type paymentSucceededData struct {
	TenantID         string `json:"tenant_id"`
	PaymentID        string `json:"payment_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	ReservationRef   string `json:"reservation_id,omitempty"`
	GuestRef         string `json:"guest_id,omitempty"`
}

type payoutCreatedData struct {
	TenantID         string `json:"tenant_id"`
	PayoutID         string `json:"payout_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
}

type refundSucceededData struct {
	TenantID         string `json:"tenant_id"`
	RefundID         string `json:"refund_id"`
	PaymentID        string `json:"payment_id"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
}

// VerifySignature checks the hex HMAC-SHA256 of the raw payload in constant
// time.
func VerifySignature(payload []byte, signatureHex string, secret []byte) error {
	expected := hmac.New(sha256.New, secret)
	expected.Write(payload)
	provided, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(provided, expected.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseEvent verifies the signature and decodes the payload into its typed
// variant. Unknown event types return ErrUnknownEventType so the caller can
// acknowledge and skip them.
func ParseEvent(payload []byte, signatureHex string, secret []byte) (Event, error) {
	if err := VerifySignature(payload, signatureHex, secret); err != nil {
		return nil, err
	}
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if envelope.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	switch envelope.Type {
	case eventTypePaymentSucceeded:
		var data paymentSucceededData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return PaymentSucceeded{
			ID:                envelope.ID,
			TenantID:          data.TenantID,
			PaymentID:         data.PaymentID,
			AmountMinorUnits:  data.AmountMinorUnits,
			OccurredAtUnixUTC: envelope.CreatedAt,
			ReservationRef:    data.ReservationRef,
			GuestRef:          data.GuestRef,
		}, nil
	case eventTypePayoutCreated:
		var data payoutCreatedData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return PayoutCreated{
			ID:                envelope.ID,
			TenantID:          data.TenantID,
			PayoutID:          data.PayoutID,
			AmountMinorUnits:  data.AmountMinorUnits,
			OccurredAtUnixUTC: envelope.CreatedAt,
		}, nil
	case eventTypeRefundSucceeded:
		var data refundSucceededData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return RefundSucceeded{
			ID:                envelope.ID,
			TenantID:          data.TenantID,
			RefundID:          data.RefundID,
			PaymentID:         data.PaymentID,
			AmountMinorUnits:  data.AmountMinorUnits,
			OccurredAtUnixUTC: envelope.CreatedAt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, envelope.Type)
	}
}
