package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"go.uber.org/zap"
)

// Rates are compared in millionths of a percent, so the rounding only
// absorbs float noise. Two rates match when they are less than 0.01
// percentage points apart.
const (
	rateScale     = 1_000_000
	rateTolerance = 10_000
)

var globalTaxCodeMarkers = []string{"VAT", "GST", "HST", "PST", "QST"}

type TaxService struct {
	taxRates repositories.TaxRateRepository
	deposits repositories.DepositAccountRepository
	locales  repositories.LocaleCache
	log      *zap.Logger
}

func NewTaxService(
	taxRates repositories.TaxRateRepository,
	deposits repositories.DepositAccountRepository,
	locales repositories.LocaleCache,
	log *zap.Logger,
) *TaxService {
	return &TaxService{
		taxRates: taxRates,
		deposits: deposits,
		locales:  locales,
		log:      log.Named("tax"),
	}
}

// DetectLocale decides whether the company uses US sales tax or a global
// (VAT/GST) tax model. The answer is cached per realm and on tc.
func (s *TaxService) DetectLocale(ctx context.Context, ledger quickbooks.API, tc *models.TenantContext) models.TaxLocale {
	if locale := tc.Locale(); locale != "" {
		return locale
	}
	realmID := tc.RealmID()

	if s.locales != nil {
		if locale, err := s.locales.GetLocale(ctx, realmID); err == nil && locale != "" {
			tc.SetLocale(locale)
			return locale
		} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			s.log.Warn("locale cache read failed", zap.Error(err))
		}
	}

	locale := s.detect(ctx, ledger, realmID)
	tc.SetLocale(locale)

	if s.locales != nil {
		if err := s.locales.SetLocale(ctx, realmID, locale); err != nil {
			s.log.Warn("locale cache write failed", zap.Error(err))
		}
	}
	return locale
}

func (s *TaxService) detect(ctx context.Context, ledger quickbooks.API, realmID string) models.TaxLocale {
	var info quickbooks.CompanyInfo
	err := ledger.Read(ctx, quickbooks.EntityCompanyInfo, realmID, &info)
	if err == nil && info.ID != "" {
		country := info.Country
		if country == "" && info.CompanyAddr != nil {
			country = info.CompanyAddr.Country
		}
		return localeForCountry(country)
	}
	if err != nil {
		s.log.Debug("company info unavailable, probing tax codes", zap.Error(err))
	}

	resp, err := ledger.Query(ctx, "SELECT * FROM TaxCode")
	if err != nil {
		s.log.Debug("tax code probe failed, defaulting to US", zap.Error(err))
		return models.LocaleUS
	}
	return localeForTaxCodes(resp.TaxCode)
}

func localeForCountry(country string) models.TaxLocale {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "", "US", "USA", "UNITED STATES":
		return models.LocaleUS
	}
	return models.LocaleGlobal
}

func localeForTaxCodes(codes []quickbooks.TaxCode) models.TaxLocale {
	for _, code := range codes {
		name := strings.ToUpper(strings.TrimSpace(code.Name))
		if name == quickbooks.TaxCodeTaxable || name == quickbooks.TaxCodeExempt {
			return models.LocaleUS
		}
		for _, marker := range globalTaxCodeMarkers {
			if strings.Contains(name, marker) {
				return models.LocaleGlobal
			}
		}
	}
	return models.LocaleUS
}

// LineTax is the tax information of one Stripe line.
type LineTax struct {
	TaxMinor             int64
	AmountExcludingMinor int64
	EffectivePercent     *float64
}

// TaxCoder assigns QBO tax codes to the lines of one document.
type TaxCoder struct {
	locale  models.TaxLocale
	entries []models.TaxRateCacheEntry
	exempt  string
}

// Coder detects the locale and, for global companies, loads the cached tax
// rates once for a whole document.
func (s *TaxService) Coder(ctx context.Context, ledger quickbooks.API, tc *models.TenantContext) (*TaxCoder, error) {
	coder := &TaxCoder{locale: s.DetectLocale(ctx, ledger, tc)}
	if coder.locale != models.LocaleGlobal {
		return coder, nil
	}

	entries, err := s.taxRates.List(ctx, tc.TenantID)
	if err != nil {
		return nil, err
	}
	coder.entries = entries
	if tc.Settings != nil {
		coder.exempt = ResolveExemptCode(entries, tc.Settings.TaxExemptID)
	}
	return coder, nil
}

func NewTaxCoder(locale models.TaxLocale, entries []models.TaxRateCacheEntry, exemptSetting string) *TaxCoder {
	return &TaxCoder{locale: locale, entries: entries, exempt: ResolveExemptCode(entries, exemptSetting)}
}

func (c *TaxCoder) Locale() models.TaxLocale {
	return c.locale
}

func (c *TaxCoder) Global() bool {
	return c.locale == models.LocaleGlobal
}

// Exempt returns the configured exempt tax code, "" when none is set.
func (c *TaxCoder) Exempt() string {
	return c.exempt
}

// RequireExempt fails when a global company has no exempt code configured.
func (c *TaxCoder) RequireExempt() (string, error) {
	if c.exempt == "" {
		return "", syncerr.Validation("tax exempt code is not configured")
	}
	return c.exempt, nil
}

// LineCode returns the tax code for a line, "" when the line carries none.
func (c *TaxCoder) LineCode(line LineTax) string {
	if !c.Global() {
		if line.TaxMinor > 0 {
			return quickbooks.TaxCodeTaxable
		}
		return quickbooks.TaxCodeExempt
	}

	if line.TaxMinor <= 0 {
		return c.exempt
	}
	var percent float64
	switch {
	case line.EffectivePercent != nil:
		percent = *line.EffectivePercent
	case line.AmountExcludingMinor > 0:
		percent = float64(line.TaxMinor) / float64(line.AmountExcludingMinor) * 100
	default:
		return c.exempt
	}
	if code, ok := MatchTaxCode(c.entries, percent); ok {
		return code
	}
	return c.exempt
}

// MatchTaxCode returns the tax code of the Sales rate closest to percent,
// provided it is within tolerance. Ties keep the first entry.
func MatchTaxCode(entries []models.TaxRateCacheEntry, percent float64) (string, bool) {
	target := int64(math.Round(percent * rateScale))
	best := ""
	bestDiff := int64(math.MaxInt64)
	for _, e := range entries {
		if e.RateType != models.RateTypeSales {
			continue
		}
		diff := int64(math.Round(e.RateValue*rateScale)) - target
		if diff < 0 {
			diff = -diff
		}
		if diff < rateTolerance && diff < bestDiff {
			best = e.TaxCodeRef
			bestDiff = diff
		}
	}
	return best, best != ""
}

// ResolveExemptCode maps the configured exempt setting to a tax code. The
// setting may name a tax code or a tax rate; anything else is used as is.
func ResolveExemptCode(entries []models.TaxRateCacheEntry, setting string) string {
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return ""
	}
	for _, e := range entries {
		if e.TaxCodeRef == setting {
			return setting
		}
	}
	for _, e := range entries {
		if e.RateID == setting {
			return e.TaxCodeRef
		}
	}
	return setting
}

// RefreshTaxRates rebuilds the tenant's tax rate cache from QBO.
func (s *TaxService) RefreshTaxRates(ctx context.Context, ledger quickbooks.API, tc *models.TenantContext) (int, error) {
	ratesResp, err := ledger.Query(ctx, "SELECT * FROM TaxRate MAXRESULTS 1000")
	if err != nil {
		return 0, WrapLedgerError(err, "failed to query tax rates")
	}
	codesResp, err := ledger.Query(ctx, "SELECT * FROM TaxCode MAXRESULTS 1000")
	if err != nil {
		return 0, WrapLedgerError(err, "failed to query tax codes")
	}

	entries := BuildTaxRateEntries(ratesResp.TaxRate, codesResp.TaxCode)
	for i := range entries {
		entries[i].TenantID = tc.TenantID
	}
	if err := s.taxRates.ReplaceAll(ctx, tc.TenantID, entries); err != nil {
		return 0, err
	}
	s.log.Info("tax rate cache refreshed",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.Int("entries", len(entries)))
	return len(entries), nil
}

// BuildTaxRateEntries flattens tax codes into one entry per referenced rate
// and direction. References to unknown rates are dropped.
func BuildTaxRateEntries(rates []quickbooks.TaxRate, codes []quickbooks.TaxCode) []models.TaxRateCacheEntry {
	byID := make(map[string]quickbooks.TaxRate, len(rates))
	for _, r := range rates {
		byID[r.ID] = r
	}

	var entries []models.TaxRateCacheEntry
	add := func(code quickbooks.TaxCode, list *quickbooks.TaxRateList, rateType models.RateType) {
		if list == nil {
			return
		}
		for _, detail := range list.TaxRateDetail {
			rate, ok := byID[detail.TaxRateRef.Value]
			if !ok {
				continue
			}
			entries = append(entries, models.TaxRateCacheEntry{
				RateID:      rate.ID,
				Name:        rate.Name,
				RateValue:   rate.RateValue,
				TaxCodeRef:  code.ID,
				TaxCodeName: code.Name,
				RateType:    rateType,
			})
		}
	}
	for _, code := range codes {
		add(code, code.SalesTaxRateList, models.RateTypeSales)
		add(code, code.PurchaseTaxRateList, models.RateTypePurchase)
	}
	return entries
}

// RefreshDepositAccounts rebuilds the list of accounts payments can be
// deposited to.
func (s *TaxService) RefreshDepositAccounts(ctx context.Context, ledger quickbooks.API, tc *models.TenantContext) (int, error) {
	resp, err := ledger.Query(ctx, "SELECT * FROM Account WHERE AccountType IN ('Bank', 'Other Current Asset') MAXRESULTS 1000")
	if err != nil {
		return 0, WrapLedgerError(err, "failed to query deposit accounts")
	}

	accounts := make([]models.DepositAccount, 0, len(resp.Account))
	for _, a := range resp.Account {
		accounts = append(accounts, models.DepositAccount{
			TenantID:           tc.TenantID,
			AccountID:          a.ID,
			Name:               a.Name,
			AccountType:        a.AccountType,
			FullyQualifiedName: a.FullyQualifiedName,
		})
	}
	if err := s.deposits.ReplaceAll(ctx, tc.TenantID, accounts); err != nil {
		return 0, err
	}
	s.log.Info("deposit account cache refreshed",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.Int("accounts", len(accounts)))
	return len(accounts), nil
}
