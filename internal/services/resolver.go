package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"go.uber.org/zap"
)

// QBO field limits.
const (
	maxDisplayName = 100
	maxPersonName  = 25
	maxEmail       = 100
	maxItemName    = 100
	maxSku         = 31
	maxDescription = 4000
)

const (
	customerNote          = "Created via Stripe integration"
	incomeAccountName     = "Sales of Product Income"
	incomeAccountType     = "Income"
	incomeAccountSubType  = "SalesOfProductIncome"
	paymentMethodCard     = "Credit Card"
	paymentMethodACH      = "ACH"
	paymentMethodTransfer = "Bank Transfer"
	paymentMethodStripe   = "Stripe"
)

// ItemSpec describes the QBO item a Stripe line should be booked against.
type ItemSpec struct {
	Name        string
	Sku         string
	Description string
	UnitPrice   *float64
	Taxable     bool
	// AllowFallback lets a failed create fall back to the configured
	// fallback item.
	AllowFallback bool
}

// Resolver finds or creates the QBO customers, items, accounts and payment
// methods documents point at.
type Resolver struct {
	fallbackItemName       string
	defaultIncomeAccountID string
	log                    *zap.Logger
}

func NewResolver(fallbackItemName, defaultIncomeAccountID string, log *zap.Logger) *Resolver {
	if defaultIncomeAccountID == "" {
		defaultIncomeAccountID = "1"
	}
	return &Resolver{
		fallbackItemName:       strings.TrimSpace(fallbackItemName),
		defaultIncomeAccountID: defaultIncomeAccountID,
		log:                    log.Named("resolver"),
	}
}

// ResolveCustomer returns the id of the customer with the given email,
// creating one when none exists. Name defaults to the email.
func (r *Resolver) ResolveCustomer(ctx context.Context, ledger quickbooks.API, name, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", syncerr.Validation("customer email is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email
	}

	id, err := r.findCustomer(ctx, ledger, "PrimaryEmailAddr", email)
	if err != nil || id != "" {
		return id, err
	}

	displayName := utils.Truncate(fmt.Sprintf("%s (%s)", name, email), maxDisplayName)
	doc := quickbooks.Customer{
		DisplayName:      displayName,
		GivenName:        utils.Truncate(name, maxPersonName),
		FamilyName:       utils.Truncate(name, maxPersonName),
		PrimaryEmailAddr: &quickbooks.EmailAddress{Address: utils.Truncate(email, maxEmail)},
		Notes:            customerNote,
	}
	var created quickbooks.Customer
	createErr := ledger.Create(ctx, quickbooks.EntityCustomer, doc, &created)
	if createErr == nil {
		r.log.Info("customer created", zap.String("customer_id", created.ID))
		return created.ID, nil
	}

	// QBO rejects duplicate display names; the customer may exist under a
	// different email.
	var apiErr *quickbooks.APIError
	if errors.As(createErr, &apiErr) && !apiErr.Temporary() {
		if id, err := r.findCustomer(ctx, ledger, "DisplayName", displayName); err == nil && id != "" {
			return id, nil
		}
	}
	return "", WrapLedgerError(createErr, "failed to create customer")
}

func (r *Resolver) findCustomer(ctx context.Context, ledger quickbooks.API, field, value string) (string, error) {
	resp, err := ledger.Query(ctx, fmt.Sprintf("SELECT * FROM Customer WHERE %s = %s", field, quickbooks.Literal(value)))
	if err != nil {
		return "", WrapLedgerError(err, "failed to query customer")
	}
	if len(resp.Customer) > 0 {
		return resp.Customer[0].ID, nil
	}
	return "", nil
}

// ResolveItem returns the id of the item named spec.Name, creating a Service
// item on a miss.
func (r *Resolver) ResolveItem(ctx context.Context, ledger quickbooks.API, spec ItemSpec) (string, error) {
	name := utils.Truncate(strings.TrimSpace(spec.Name), maxItemName)
	if name == "" {
		return "", syncerr.Validation("item name is required")
	}

	id, err := r.findItem(ctx, ledger, name)
	if err != nil || id != "" {
		return id, err
	}

	incomeAccountID, err := r.ResolveIncomeAccount(ctx, ledger)
	if err != nil {
		return "", err
	}
	doc := quickbooks.Item{
		Name:             name,
		Type:             "Service",
		Sku:              utils.Truncate(spec.Sku, maxSku),
		Description:      utils.Truncate(spec.Description, maxDescription),
		Taxable:          spec.Taxable,
		IncomeAccountRef: quickbooks.NewRef(incomeAccountID),
	}
	if spec.UnitPrice != nil {
		doc.UnitPrice = *spec.UnitPrice
	}

	var created quickbooks.Item
	createErr := ledger.Create(ctx, quickbooks.EntityItem, doc, &created)
	if createErr == nil {
		r.log.Info("item created", zap.String("item_id", created.ID), zap.String("name", name))
		return created.ID, nil
	}

	// A transient failure is retried with the real item instead.
	if spec.AllowFallback && r.fallbackItemName != "" && r.fallbackItemName != name && !syncerr.Retryable(createErr) {
		r.log.Warn("item create failed, using fallback item",
			zap.String("name", name),
			zap.String("fallback", r.fallbackItemName),
			zap.Error(createErr))
		return r.ResolveItem(ctx, ledger, ItemSpec{Name: r.fallbackItemName, Taxable: spec.Taxable})
	}
	return "", WrapLedgerError(createErr, "failed to create item %q", name)
}

func (r *Resolver) findItem(ctx context.Context, ledger quickbooks.API, name string) (string, error) {
	resp, err := ledger.Query(ctx, "SELECT * FROM Item WHERE Name = "+quickbooks.Literal(name))
	if err != nil {
		return "", WrapLedgerError(err, "failed to query item")
	}
	if len(resp.Item) > 0 {
		return resp.Item[0].ID, nil
	}
	return "", nil
}

// ResolveAccount returns the id of the account with the given name, "" when
// there is none.
func (r *Resolver) ResolveAccount(ctx context.Context, ledger quickbooks.API, name string) (string, error) {
	resp, err := ledger.Query(ctx, "SELECT * FROM Account WHERE Name = "+quickbooks.Literal(name))
	if err != nil {
		return "", WrapLedgerError(err, "failed to query account %q", name)
	}
	if len(resp.Account) > 0 {
		return resp.Account[0].ID, nil
	}
	return "", nil
}

// ResolveIncomeAccount picks the income account new items are booked to.
func (r *Resolver) ResolveIncomeAccount(ctx context.Context, ledger quickbooks.API) (string, error) {
	id, err := r.ResolveAccount(ctx, ledger, incomeAccountName)
	if err != nil || id != "" {
		return id, err
	}

	resp, err := ledger.Query(ctx, fmt.Sprintf("SELECT * FROM Account WHERE AccountType = %s AND AccountSubType = %s",
		quickbooks.Literal(incomeAccountType), quickbooks.Literal(incomeAccountSubType)))
	if err != nil {
		return "", WrapLedgerError(err, "failed to query income accounts")
	}
	if len(resp.Account) > 0 {
		return resp.Account[0].ID, nil
	}

	resp, err = ledger.Query(ctx, "SELECT * FROM Account WHERE AccountType = "+quickbooks.Literal(incomeAccountType))
	if err != nil {
		return "", WrapLedgerError(err, "failed to query income accounts")
	}
	if len(resp.Account) > 0 {
		return resp.Account[0].ID, nil
	}

	r.log.Warn("no income account found, using default", zap.String("account_id", r.defaultIncomeAccountID))
	return r.defaultIncomeAccountID, nil
}

// PaymentMethodName maps a Stripe payment method type to the QBO payment
// method name used for it.
func PaymentMethodName(providerType string) string {
	switch providerType {
	case "card", "link":
		return paymentMethodCard
	case "ach_debit", "us_bank_account":
		return paymentMethodACH
	case "sepa_debit", "acss_debit":
		return paymentMethodTransfer
	case "stripe":
		return paymentMethodStripe
	}
	return paymentMethodCard
}

// ResolvePaymentMethod returns the id of the QBO payment method for a
// Stripe payment method type, creating it on a miss.
func (r *Resolver) ResolvePaymentMethod(ctx context.Context, ledger quickbooks.API, providerType string) (string, error) {
	name := PaymentMethodName(providerType)

	resp, err := ledger.Query(ctx, "SELECT * FROM PaymentMethod WHERE Name = "+quickbooks.Literal(name))
	if err != nil {
		return "", WrapLedgerError(err, "failed to query payment method")
	}
	if len(resp.PaymentMethod) > 0 {
		return resp.PaymentMethod[0].ID, nil
	}

	methodType := "NON_CREDIT_CARD"
	if name == paymentMethodCard {
		methodType = "CREDIT_CARD"
	}
	var created quickbooks.PaymentMethod
	if err := ledger.Create(ctx, quickbooks.EntityPaymentMethod, quickbooks.PaymentMethod{Name: name, Type: methodType}, &created); err != nil {
		return "", WrapLedgerError(err, "failed to create payment method %q", name)
	}
	return created.ID, nil
}

// WrapLedgerError classifies a ledger failure, keeping the request and fault bodies
// for sync history.
func WrapLedgerError(err error, format string, args ...any) error {
	var se *syncerr.Error
	if errors.As(err, &se) {
		return err
	}
	wrapped := syncerr.Upstream(err, format, args...)
	var apiErr *quickbooks.APIError
	if errors.As(err, &apiErr) {
		if apiErr.RequestBody != nil {
			wrapped.WithDetail("request", apiErr.RequestBody)
		}
		if len(apiErr.ResponseBody) > 0 {
			wrapped.WithDetail("fault", string(apiErr.ResponseBody))
		}
	}
	return wrapped
}
