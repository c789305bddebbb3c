package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_TypedVariants(t *testing.T) {
	received := time.Unix(1700000100, 0)
	tests := []struct {
		raw   string
		check func(t *testing.T, p EventPayload)
	}{
		{
			`{"id":"evt_1","type":"invoice.paid","created":1700000000,"data":{"object":{"id":"in_1","amount_paid":5000}}}`,
			func(t *testing.T, p EventPayload) {
				v, ok := p.(InvoicePaid)
				require.True(t, ok)
				assert.Equal(t, "in_1", v.Invoice.ID)
			},
		},
		{
			`{"id":"evt_2","type":"charge.failed","data":{"object":{"id":"ch_1"}}}`,
			func(t *testing.T, p EventPayload) {
				v, ok := p.(ChargeFailed)
				require.True(t, ok)
				assert.Equal(t, "ch_1", v.Charge.ID)
			},
		},
		{
			`{"id":"evt_3","type":"refund.created","data":{"object":{"id":"re_1"}}}`,
			func(t *testing.T, p EventPayload) {
				v, ok := p.(RefundCreated)
				require.True(t, ok)
				assert.Equal(t, "re_1", v.Refund.ID)
			},
		},
		{
			`{"id":"evt_4","type":"quote.accepted","data":{"object":{"id":"qt_1"}}}`,
			func(t *testing.T, p EventPayload) {
				_, ok := p.(QuoteAccepted)
				assert.True(t, ok)
			},
		},
	}
	for _, tt := range tests {
		event, err := ParseEvent([]byte(tt.raw), received)
		require.NoError(t, err, tt.raw)
		assert.True(t, event.Handled())
		assert.Equal(t, received, event.ReceivedAt)
		assert.Equal(t, tt.raw, string(event.Raw))
		tt.check(t, event.Payload)
	}
}

func TestParseEvent_Envelope(t *testing.T) {
	// ACT
	event, err := ParseEvent([]byte(`{"id":"evt_1","type":"invoice.paid","created":1700000000,"livemode":true,"data":{"object":{"id":"in_1"}}}`), time.Now())

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventInvoicePaid, event.Type)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), event.Created)
	assert.True(t, event.Livemode)
}

func TestParseEvent_Unhandled(t *testing.T) {
	event, err := ParseEvent([]byte(`{"id":"evt_9","type":"customer.updated","data":{"object":{"id":"cus_1"}}}`), time.Now())

	require.NoError(t, err)
	assert.False(t, event.Handled())
	assert.Equal(t, Unhandled{Type: "customer.updated"}, event.Payload)
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := map[string]struct {
		raw  string
		want string
	}{
		"not json":          {`{"id":`, ""},
		"missing id":        {`{"type":"invoice.paid","data":{"object":{"id":"in_1"}}}`, "missing id"},
		"missing type":      {`{"id":"evt_1","data":{"object":{"id":"in_1"}}}`, "missing type"},
		"missing object":    {`{"id":"evt_1","type":"invoice.paid","data":{}}`, "object is required"},
		"object without id": {`{"id":"evt_1","type":"refund.created","data":{"object":{"amount":100}}}`, "object id is required"},
		"object mismatch":   {`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":"ch_1","amount":"lots"}}}`, "charge.succeeded"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.raw), time.Now())

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEvent))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEventMask(t *testing.T) {
	mask := MaskOf(EventInvoicePaid, EventProductCreated)

	assert.True(t, mask.Has(EventInvoicePaid))
	assert.True(t, mask.Has(EventProductCreated))
	assert.False(t, mask.Has(EventRefundCreated))
	assert.False(t, mask.Has(EventType("customer.created")))
	assert.Equal(t, []EventType{EventInvoicePaid, EventProductCreated}, mask.Types())
	assert.Equal(t, EventMask(0), MaskOf(EventType("customer.created")))
}

func TestSyncSettings_IsEnabled(t *testing.T) {
	var missing *SyncSettings
	assert.False(t, missing.IsEnabled(EventInvoicePaid))

	s := &SyncSettings{Enabled: MaskOf(EventChargeFailed)}
	assert.True(t, s.IsEnabled(EventChargeFailed))
	assert.False(t, s.IsEnabled(EventChargeSucceeded))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, 25.99, MinorToMajor(2599))
	assert.Equal(t, 50.0, MinorToMajor(5000))
	assert.Equal(t, 0.01, MinorToMajor(1))
	assert.Equal(t, 0.8, RoundMoney(0.1*8))
	assert.Equal(t, 12.35, RoundMoney(12.345000001))
}
