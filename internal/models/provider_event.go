package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
)

type EventType string

const (
	EventInvoicePaid            EventType = "invoice.paid"
	EventInvoiceFinalized       EventType = "invoice.finalized"
	EventPaymentIntentSucceeded EventType = "payment_intent.succeeded"
	EventChargeSucceeded        EventType = "charge.succeeded"
	EventChargeFailed           EventType = "charge.failed"
	EventRefundCreated          EventType = "refund.created"
	EventCreditNoteCreated      EventType = "credit_note.created"
	EventProductCreated         EventType = "product.created"
	EventQuoteAccepted          EventType = "quote.accepted"
)

// SupportedEventTypes lists the synchronized kinds in bitmap order.
var SupportedEventTypes = []EventType{
	EventInvoicePaid,
	EventInvoiceFinalized,
	EventPaymentIntentSucceeded,
	EventChargeSucceeded,
	EventChargeFailed,
	EventRefundCreated,
	EventCreditNoteCreated,
	EventProductCreated,
	EventQuoteAccepted,
}

func (t EventType) Supported() bool {
	return t.bit() != 0
}

// ErrMalformedEvent wraps every parse failure of an inbound payload.
var ErrMalformedEvent = errors.New("malformed provider event")

// ProviderEvent is one immutable Stripe notification. Payload holds exactly
// one of the typed variants below.
type ProviderEvent struct {
	ID         string
	Type       EventType
	Created    time.Time
	Livemode   bool
	ReceivedAt time.Time
	Payload    EventPayload
	Raw        json.RawMessage
}

// Handled reports whether the event has a processor.
func (e *ProviderEvent) Handled() bool {
	_, unhandled := e.Payload.(Unhandled)
	return !unhandled
}

// EventPayload is implemented only by the variants in this file.
type EventPayload interface {
	eventType() EventType
}

type InvoicePaid struct{ Invoice stripe.Invoice }
type InvoiceFinalized struct{ Invoice stripe.Invoice }
type PaymentIntentSucceeded struct{ PaymentIntent stripe.PaymentIntent }
type ChargeSucceeded struct{ Charge stripe.Charge }
type ChargeFailed struct{ Charge stripe.Charge }
type RefundCreated struct{ Refund stripe.Refund }
type CreditNoteCreated struct{ CreditNote stripe.CreditNote }
type ProductCreated struct{ Product stripe.Product }
type QuoteAccepted struct{ Quote stripe.Quote }

// Unhandled carries any event type without a processor.
type Unhandled struct{ Type string }

func (InvoicePaid) eventType() EventType            { return EventInvoicePaid }
func (InvoiceFinalized) eventType() EventType       { return EventInvoiceFinalized }
func (PaymentIntentSucceeded) eventType() EventType { return EventPaymentIntentSucceeded }
func (ChargeSucceeded) eventType() EventType        { return EventChargeSucceeded }
func (ChargeFailed) eventType() EventType           { return EventChargeFailed }
func (RefundCreated) eventType() EventType          { return EventRefundCreated }
func (CreditNoteCreated) eventType() EventType      { return EventCreditNoteCreated }
func (ProductCreated) eventType() EventType         { return EventProductCreated }
func (QuoteAccepted) eventType() EventType          { return EventQuoteAccepted }
func (u Unhandled) eventType() EventType            { return EventType(u.Type) }

type eventEnvelope struct {
	ID       string `json:"id" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

var envelopeValidator = validator.New()

// ParseEvent decodes a webhook body into a ProviderEvent. A missing id or
// type, or a data.object that does not match the event type, yields an error
// wrapping ErrMalformedEvent.
func ParseEvent(raw []byte, receivedAt time.Time) (*ProviderEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := envelopeValidator.Struct(env); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedEvent, jsonFieldName(verrs[0].Field()))
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	eventType := EventType(env.Type)
	payload, err := decodePayload(eventType, env.Data.Object)
	if err != nil {
		return nil, fmt.Errorf("%w: %s data.object: %v", ErrMalformedEvent, env.Type, err)
	}

	return &ProviderEvent{
		ID:         env.ID,
		Type:       eventType,
		Created:    time.Unix(env.Created, 0).UTC(),
		Livemode:   env.Livemode,
		ReceivedAt: receivedAt,
		Payload:    payload,
		Raw:        append(json.RawMessage(nil), raw...),
	}, nil
}

func decodePayload(eventType EventType, object json.RawMessage) (EventPayload, error) {
	if !eventType.Supported() {
		return Unhandled{Type: string(eventType)}, nil
	}
	if len(object) == 0 || string(object) == "null" {
		return nil, errors.New("object is required")
	}

	var (
		payload EventPayload
		err     error
	)
	switch eventType {
	case EventInvoicePaid:
		var p InvoicePaid
		err = decodeObject(object, &p.Invoice, &p.Invoice.ID)
		payload = p
	case EventInvoiceFinalized:
		var p InvoiceFinalized
		err = decodeObject(object, &p.Invoice, &p.Invoice.ID)
		payload = p
	case EventPaymentIntentSucceeded:
		var p PaymentIntentSucceeded
		err = decodeObject(object, &p.PaymentIntent, &p.PaymentIntent.ID)
		payload = p
	case EventChargeSucceeded:
		var p ChargeSucceeded
		err = decodeObject(object, &p.Charge, &p.Charge.ID)
		payload = p
	case EventChargeFailed:
		var p ChargeFailed
		err = decodeObject(object, &p.Charge, &p.Charge.ID)
		payload = p
	case EventRefundCreated:
		var p RefundCreated
		err = decodeObject(object, &p.Refund, &p.Refund.ID)
		payload = p
	case EventCreditNoteCreated:
		var p CreditNoteCreated
		err = decodeObject(object, &p.CreditNote, &p.CreditNote.ID)
		payload = p
	case EventProductCreated:
		var p ProductCreated
		err = decodeObject(object, &p.Product, &p.Product.ID)
		payload = p
	case EventQuoteAccepted:
		var p QuoteAccepted
		err = decodeObject(object, &p.Quote, &p.Quote.ID)
		payload = p
	default:
		payload = Unhandled{Type: string(eventType)}
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// decodeObject fills dst and requires the object to carry an id.
func decodeObject(object json.RawMessage, dst any, id *string) error {
	if err := json.Unmarshal(object, dst); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("object id is required")
	}
	return nil
}

func jsonFieldName(field string) string {
	switch field {
	case "ID":
		return "id"
	case "Type":
		return "type"
	}
	return field
}
