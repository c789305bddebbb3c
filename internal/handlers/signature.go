package handlers

import (
	"time"

	"github.com/stripe/stripe-go/v75/webhook"
)

// DefaultSignatureTolerance bounds the age of a signed webhook timestamp.
const DefaultSignatureTolerance = webhook.DefaultTolerance

// VerifyStripeSignature checks a Stripe-Signature header against payload.
// A tolerance of zero skips the timestamp check.
func VerifyStripeSignature(payload []byte, header, secret string, tolerance time.Duration) error {
	if tolerance <= 0 {
		return webhook.ValidatePayloadIgnoringTolerance(payload, header, secret)
	}
	return webhook.ValidatePayloadWithTolerance(payload, header, secret, tolerance)
}
