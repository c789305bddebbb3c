package models

import (
	"time"

	"github.com/google/uuid"
)

// ProviderAccount is the single configured Stripe account. The API key is
// stored encrypted.
type ProviderAccount struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	StripeUserID    string     `json:"stripe_user_id"`
	APIKeyEncrypted string     `json:"-"`
	IsLive          bool       `json:"is_live"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}
