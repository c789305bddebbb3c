package handlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v75/webhook"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"valid", sign(payload, testSecret, now), nil},
		{"second v1 matches", sign(payload, testSecret, now) + ",v1=00ff", nil},
		{"wrong secret", sign(payload, "other", now), webhook.ErrNoValidSignature},
		{"stale", sign(payload, testSecret, now.Add(-6*time.Minute)), webhook.ErrTooOld},
		{"empty header", "", webhook.ErrNotSigned},
		{"no v1", "t=1700000000", webhook.ErrNoValidSignature},
		{"bad timestamp", "t=abc,v1=00", webhook.ErrInvalidHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyStripeSignature(payload, tt.header, testSecret, DefaultSignatureTolerance)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyStripeSignature_TamperedBody(t *testing.T) {
	// ARRANGE
	header := sign([]byte(`{"id":"evt_1"}`), testSecret, time.Now())

	// ACT
	err := VerifyStripeSignature([]byte(`{"id":"evt_2"}`), header, testSecret, DefaultSignatureTolerance)

	// ASSERT
	assert.ErrorIs(t, err, webhook.ErrNoValidSignature)
}

func TestVerifyStripeSignature_ZeroToleranceAcceptsOldTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := sign(payload, testSecret, time.Unix(1700000000, 0))

	assert.NoError(t, VerifyStripeSignature(payload, header, testSecret, 0))
}
