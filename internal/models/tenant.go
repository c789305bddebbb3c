package models

import "github.com/google/uuid"

// TenantContext is everything a processor needs about the tenant it runs
// for. It is built once per processing attempt and passed explicitly.
type TenantContext struct {
	TenantID uuid.UUID
	Account  *ProviderAccount
	APIKey   string
	Ledger   *OAuthToken
	Settings *SyncSettings

	locale TaxLocale
}

func (tc *TenantContext) RealmID() string {
	if tc.Ledger == nil {
		return ""
	}
	return tc.Ledger.RealmID
}

// Locale returns the detected tax locale, "" before detection.
func (tc *TenantContext) Locale() TaxLocale {
	return tc.locale
}

func (tc *TenantContext) SetLocale(l TaxLocale) {
	tc.locale = l
}
