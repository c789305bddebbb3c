package processors

import (
	"context"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"go.uber.org/zap"
)

// QuoteProcessor turns an accepted Stripe quote into a QBO sales order.
type QuoteProcessor struct {
	base
}

func NewQuoteProcessor(d Deps) *QuoteProcessor {
	return &QuoteProcessor{base: newBase(d, "quote")}
}

func (p *QuoteProcessor) EventType() models.EventType {
	return models.EventQuoteAccepted
}

func (p *QuoteProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.QuoteAccepted)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	quote := payload.Quote

	if m, err := p.existing(ctx, tc, models.MappingSalesOrder, quote.ID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Quote already processed", m.TargetID), nil
	}

	sc := p.clients.Stripe(tc)
	cust := quote.Customer.Object
	if cust == nil {
		if quote.Customer.ID == "" {
			return nil, syncerr.Validation("quote %s has no customer", quote.ID)
		}
		fetched, err := sc.GetCustomer(ctx, quote.Customer.ID)
		if err != nil {
			return nil, fetchFailed(err, "customer", quote.Customer.ID)
		}
		cust = fetched
	}
	if cust.Email == "" {
		return nil, syncerr.Validation("customer email is required but missing on quote %s", quote.ID)
	}

	items, err := sc.ListQuoteLineItems(ctx, quote.ID)
	if err != nil {
		return nil, fetchFailed(err, "quote line items for", quote.ID)
	}
	if len(items) == 0 {
		return nil, syncerr.Validation("quote %s has no line items", quote.ID)
	}

	ledger := p.clients.Ledger(tc)
	customerID, err := p.resolver.ResolveCustomer(ctx, ledger, cust.Name, cust.Email)
	if err != nil {
		return nil, err
	}
	coder, err := p.tax.Coder(ctx, ledger, tc)
	if err != nil {
		return nil, err
	}
	lines, totalTax, err := p.buildLines(ctx, ledger, coder, checkoutLines(items, "Product"))
	if err != nil {
		return nil, err
	}

	doc := quickbooks.SalesOrder{
		DocNumber:   utils.Truncate(quote.Number, maxDocNumber),
		CustomerRef: quickbooks.Ref{Value: customerID},
		Line:        lines,
		TxnDate:     txnDate(quote.Created),
		TotalAmt:    models.MinorToMajor(quote.AmountTotal),
		CurrencyRef: currencyRef(quote.Currency),
		PrivateNote: "Stripe Quote: " + quote.ID,
	}
	doc.GlobalTaxCalculation, doc.TxnTaxDetail = txnTax(coder, totalTax)

	var created quickbooks.SalesOrder
	if err := ledger.Create(ctx, quickbooks.EntitySalesOrder, doc, &created); err != nil {
		return nil, services.WrapLedgerError(err, "failed to create sales order in QuickBooks")
	}
	p.log.Info("sales order created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("quote_id", quote.ID),
		zap.String("qbo_sales_order_id", created.ID))

	if err := p.record(ctx, tc, models.MappingSalesOrder, quote.ID, created.ID, ""); err != nil {
		return nil, err
	}
	return success("Sales order created in QuickBooks", created.ID, map[string]any{
		"qbo_sales_order_id": created.ID,
		"stripe_quote_id":    quote.ID,
	}), nil
}
