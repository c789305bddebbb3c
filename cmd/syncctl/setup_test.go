package main

import (
	"testing"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventMask(t *testing.T) {
	t.Run("all", func(t *testing.T) {
		mask, err := parseEventMask([]string{"all"})

		require.NoError(t, err)
		assert.Equal(t, models.SupportedEventTypes, mask.Types())
	})

	t.Run("selected", func(t *testing.T) {
		mask, err := parseEventMask([]string{"invoice.paid", " refund.created"})

		require.NoError(t, err)
		assert.True(t, mask.Has(models.EventInvoicePaid))
		assert.True(t, mask.Has(models.EventRefundCreated))
		assert.False(t, mask.Has(models.EventQuoteAccepted))
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := parseEventMask([]string{"customer.created"})

		assert.ErrorContains(t, err, "unsupported event type")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := parseEventMask(nil)

		assert.Error(t, err)
	})
}
