package models

import (
	"time"

	"github.com/google/uuid"
)

// OAuthToken is the tenant's QuickBooks connection: realm plus token pair.
type OAuthToken struct {
	TenantID              uuid.UUID  `json:"tenant_id"`
	RealmID               string     `json:"realm_id"`
	AccessToken           string     `json:"-"`
	RefreshToken          string     `json:"-"`
	AccessTokenExpiresAt  time.Time  `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time  `json:"refresh_token_expires_at"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

func (t *OAuthToken) AccessExpired(now time.Time) bool {
	return !t.AccessTokenExpiresAt.After(now)
}

func (t *OAuthToken) RefreshExpired(now time.Time) bool {
	return !t.RefreshTokenExpiresAt.After(now)
}
