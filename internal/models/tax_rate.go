package models

import "github.com/google/uuid"

type RateType string

const (
	RateTypeSales    RateType = "Sales"
	RateTypePurchase RateType = "Purchase"
)

// TaxRateCacheEntry is one QBO tax rate as referenced from one tax code.
type TaxRateCacheEntry struct {
	TenantID    uuid.UUID `json:"tenant_id"`
	RateID      string    `json:"rate_id"`
	Name        string    `json:"name"`
	RateValue   float64   `json:"rate_value"`
	TaxCodeRef  string    `json:"tax_code_ref"`
	TaxCodeName string    `json:"tax_code_name"`
	RateType    RateType  `json:"rate_type"`
}

type DepositAccount struct {
	TenantID           uuid.UUID `json:"tenant_id"`
	AccountID          string    `json:"account_id"`
	Name               string    `json:"name"`
	AccountType        string    `json:"account_type"`
	FullyQualifiedName string    `json:"fully_qualified_name"`
}

type TaxLocale string

const (
	LocaleUS     TaxLocale = "us"
	LocaleGlobal TaxLocale = "global"
)
