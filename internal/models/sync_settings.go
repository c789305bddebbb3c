package models

import (
	"time"

	"github.com/google/uuid"
)

// EventMask is the enabled-event bitmap stored with the sync settings.
type EventMask uint32

func (t EventType) bit() EventMask {
	for i, supported := range SupportedEventTypes {
		if supported == t {
			return 1 << uint(i)
		}
	}
	return 0
}

func MaskOf(types ...EventType) EventMask {
	var mask EventMask
	for _, t := range types {
		mask |= t.bit()
	}
	return mask
}

func (m EventMask) Has(t EventType) bool {
	bit := t.bit()
	return bit != 0 && m&bit == bit
}

// Types lists the enabled event types in bitmap order.
func (m EventMask) Types() []EventType {
	var types []EventType
	for _, t := range SupportedEventTypes {
		if m.Has(t) {
			types = append(types, t)
		}
	}
	return types
}

type SyncSettings struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	Enabled          EventMask `json:"enabled_events"`
	TaxExemptID      string    `json:"tax_exempt_id"`
	DepositAccountID string    `json:"deposit_account_id"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *SyncSettings) IsEnabled(t EventType) bool {
	return s != nil && s.Enabled.Has(t)
}
