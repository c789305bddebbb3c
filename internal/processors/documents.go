package processors

import (
	"context"
	"strings"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"go.uber.org/zap"
)

const (
	dateLayout         = "2006-01-02"
	maxPaymentRefNum   = 21
	maxDocNumber       = 21
	defaultDueDays     = 30
	undepositedFunds   = "Undeposited Funds"
	stripePaymentType  = "stripe"
	defaultPaymentType = "card"
)

func txnDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(dateLayout)
}

// currencyRef is nil for USD documents.
func currencyRef(currency string) *quickbooks.Ref {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" || c == "USD" {
		return nil
	}
	return &quickbooks.Ref{Value: c}
}

// lineInput is one Stripe line before item resolution.
type lineInput struct {
	ItemName    string
	Sku         string
	Description string
	NetMinor    int64
	UnitPrice   float64
	Qty         float64
	Tax         services.LineTax
	Taxable     bool
}

// buildLines resolves items and tax codes for every input line and sums the
// tax they carry.
func (b *base) buildLines(ctx context.Context, ledger quickbooks.API, coder *services.TaxCoder, inputs []lineInput) ([]quickbooks.Line, int64, error) {
	lines := make([]quickbooks.Line, 0, len(inputs))
	var totalTax int64
	for _, in := range inputs {
		itemID, err := b.resolver.ResolveItem(ctx, ledger, services.ItemSpec{
			Name:          in.ItemName,
			Sku:           in.Sku,
			Description:   in.Description,
			Taxable:       in.Taxable,
			AllowFallback: true,
		})
		if err != nil {
			return nil, 0, err
		}

		qty := in.Qty
		if qty <= 0 {
			qty = 1
		}
		detail := &quickbooks.SalesItemLineDetail{
			ItemRef:   quickbooks.Ref{Value: itemID},
			Qty:       qty,
			UnitPrice: in.UnitPrice,
		}
		if code := coder.LineCode(in.Tax); code != "" {
			detail.TaxCodeRef = &quickbooks.Ref{Value: code}
		}
		lines = append(lines, quickbooks.Line{
			DetailType:          quickbooks.DetailTypeSalesItem,
			Amount:              models.MinorToMajor(in.NetMinor),
			Description:         utils.Truncate(utils.FirstNonEmpty(in.Description, in.ItemName), 4000),
			SalesItemLineDetail: detail,
		})
		totalTax += in.Tax.TaxMinor
	}
	return lines, totalTax, nil
}

// txnTax returns the document-level tax fields for the company's locale.
func txnTax(coder *services.TaxCoder, totalTaxMinor int64) (string, *quickbooks.TxnTaxDetail) {
	if coder.Global() {
		var detail *quickbooks.TxnTaxDetail
		if totalTaxMinor > 0 {
			detail = &quickbooks.TxnTaxDetail{TotalTax: models.MinorToMajor(totalTaxMinor)}
		}
		return quickbooks.GlobalTaxExcluded, detail
	}
	if totalTaxMinor > 0 {
		return "", &quickbooks.TxnTaxDetail{
			TxnTaxCodeRef: &quickbooks.Ref{Value: quickbooks.TaxCodeTaxable},
			TotalTax:      models.MinorToMajor(totalTaxMinor),
		}
	}
	return "", nil
}

// depositAccount returns the account payments are deposited to: the
// configured one, else Undeposited Funds, else none.
func (b *base) depositAccount(ctx context.Context, ledger quickbooks.API, tc *models.TenantContext) *quickbooks.Ref {
	if tc.Settings != nil && tc.Settings.DepositAccountID != "" {
		return &quickbooks.Ref{Value: tc.Settings.DepositAccountID}
	}
	id, err := b.resolver.ResolveAccount(ctx, ledger, undepositedFunds)
	if err != nil {
		b.log.Warn("deposit account lookup failed", zap.Error(err))
		return nil
	}
	return quickbooks.NewRef(id)
}

// taxPercent returns the Stripe-side rate of the first expanded tax rate.
func taxPercent(amounts []stripe.TaxAmount) *float64 {
	for _, a := range amounts {
		rate := a.TaxRate.Object
		if rate == nil {
			continue
		}
		if rate.EffectivePercentage != nil {
			p := *rate.EffectivePercentage
			return &p
		}
		p := rate.Percentage
		return &p
	}
	return nil
}

func lineItemTaxPercent(taxes []stripe.LineItemTax) *float64 {
	for _, t := range taxes {
		if t.Rate.ID == "" {
			continue
		}
		if t.Rate.EffectivePercentage != nil {
			p := *t.Rate.EffectivePercentage
			return &p
		}
		p := t.Rate.Percentage
		return &p
	}
	return nil
}

func unitPrice(netMinor, qty int64) float64 {
	if qty <= 0 {
		qty = 1
	}
	return models.RoundMoney(models.MinorToMajor(netMinor) / float64(qty))
}

func quantity(qty int64) float64 {
	if qty <= 0 {
		return 1
	}
	return float64(qty)
}

func productID(price *stripe.Price) string {
	if price == nil {
		return ""
	}
	return price.Product.ID
}

func productName(price *stripe.Price) string {
	if price == nil || price.Product.Object == nil {
		return ""
	}
	return price.Product.Object.Name
}

// checkoutLines converts checkout session or quote line items. The net
// amount is the subtotal; tax is whatever the total adds on top.
func checkoutLines(items []stripe.LineItem, fallbackName string) []lineInput {
	inputs := make([]lineInput, 0, len(items))
	for _, li := range items {
		tax := li.AmountTotal - li.AmountSubtotal
		if tax < 0 {
			tax = 0
		}
		name := utils.FirstNonEmpty(li.Description, productName(li.Price), fallbackName)
		inputs = append(inputs, lineInput{
			ItemName:    name,
			Sku:         productID(li.Price),
			Description: name,
			NetMinor:    li.AmountSubtotal,
			UnitPrice:   unitPrice(li.AmountSubtotal, li.Quantity),
			Qty:         quantity(li.Quantity),
			Taxable:     tax > 0,
			Tax: services.LineTax{
				TaxMinor:             tax,
				AmountExcludingMinor: li.AmountSubtotal,
				EffectivePercent:     lineItemTaxPercent(li.Taxes),
			},
		})
	}
	return inputs
}

// invoiceLines converts Stripe invoice lines. Subscription invoices are
// booked against the product name rather than the generated description.
func invoiceLines(inv *stripe.Invoice) []lineInput {
	subscription := inv.BillingReason == "subscription_create" || inv.BillingReason == "subscription_cycle"
	inputs := make([]lineInput, 0, len(inv.Lines.Data))
	for _, line := range inv.Lines.Data {
		name := utils.FirstNonEmpty(line.Description, "Unnamed Product")
		if subscription {
			name = utils.FirstNonEmpty(productName(line.Price), name)
		}
		net := line.NetAmount()
		price := unitPrice(net, line.Quantity)
		if line.Price != nil && line.Price.UnitAmount != nil {
			price = models.MinorToMajor(*line.Price.UnitAmount)
		}
		inputs = append(inputs, lineInput{
			ItemName:    name,
			Sku:         productID(line.Price),
			Description: utils.FirstNonEmpty(line.Description, name),
			NetMinor:    net,
			UnitPrice:   price,
			Qty:         quantity(line.Quantity),
			Taxable:     line.TaxTotal() > 0,
			Tax: services.LineTax{
				TaxMinor:             line.TaxTotal(),
				AmountExcludingMinor: net,
				EffectivePercent:     taxPercent(line.TaxAmounts),
			},
		})
	}
	return inputs
}

// invoiceCustomer returns the name and email billed on a Stripe invoice,
// looking up the customer when the invoice carries no email.
func invoiceCustomer(ctx context.Context, sc stripe.API, inv *stripe.Invoice) (string, string, error) {
	name, email := inv.CustomerName, inv.CustomerEmail
	if email != "" {
		return name, email, nil
	}
	cust := inv.Customer.Object
	if cust == nil && inv.Customer.ID != "" {
		fetched, err := sc.GetCustomer(ctx, inv.Customer.ID)
		if err != nil {
			return "", "", fetchFailed(err, "customer", inv.Customer.ID)
		}
		cust = fetched
	}
	if cust != nil {
		return utils.FirstNonEmpty(name, cust.Name), cust.Email, nil
	}
	return name, "", nil
}
