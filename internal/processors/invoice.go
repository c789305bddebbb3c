package processors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"go.uber.org/zap"
)

// InvoiceFinalizedProcessor mirrors a finalized Stripe invoice as a QBO
// invoice.
type InvoiceFinalizedProcessor struct {
	base
}

func NewInvoiceFinalizedProcessor(d Deps) *InvoiceFinalizedProcessor {
	return &InvoiceFinalizedProcessor{base: newBase(d, "invoice_finalized")}
}

func (p *InvoiceFinalizedProcessor) EventType() models.EventType {
	return models.EventInvoiceFinalized
}

func (p *InvoiceFinalizedProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.InvoiceFinalized)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	invoiceID := payload.Invoice.ID

	if m, err := p.existing(ctx, tc, models.MappingInvoice, invoiceID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Invoice already processed", m.TargetID), nil
	}

	sc := p.clients.Stripe(tc)
	inv, err := sc.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fetchFailed(err, "invoice", invoiceID)
	}

	ledger := p.clients.Ledger(tc)
	qboInvoiceID, err := p.createInvoice(ctx, tc, sc, ledger, inv)
	if err != nil {
		return nil, err
	}
	return success("Invoice created in QuickBooks", qboInvoiceID, map[string]any{
		"qbo_invoice_id":    qboInvoiceID,
		"stripe_invoice_id": invoiceID,
	}), nil
}

// createInvoice books a Stripe invoice in QBO and records the invoice
// mapping.
func (b *base) createInvoice(ctx context.Context, tc *models.TenantContext, sc stripe.API, ledger quickbooks.API, inv *stripe.Invoice) (string, error) {
	name, email, err := invoiceCustomer(ctx, sc, inv)
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", syncerr.Validation("customer email is required but missing on invoice %s", inv.ID)
	}
	if len(inv.Lines.Data) == 0 {
		return "", syncerr.Validation("invoice %s has no line items", inv.ID)
	}

	customerID, err := b.resolver.ResolveCustomer(ctx, ledger, name, email)
	if err != nil {
		return "", err
	}
	coder, err := b.tax.Coder(ctx, ledger, tc)
	if err != nil {
		return "", err
	}
	lines, lineTax, err := b.buildLines(ctx, ledger, coder, invoiceLines(inv))
	if err != nil {
		return "", err
	}

	totalTax := lineTax
	if inv.Tax != nil {
		totalTax = *inv.Tax
	}
	dueDate := time.Unix(inv.Created, 0).UTC().AddDate(0, 0, defaultDueDays).Format(dateLayout)
	if inv.DueDate != nil {
		dueDate = txnDate(*inv.DueDate)
	}

	doc := quickbooks.Invoice{
		CustomerRef:                  quickbooks.Ref{Value: customerID},
		Line:                         lines,
		TxnDate:                      txnDate(inv.Created),
		DueDate:                      dueDate,
		TotalAmt:                     models.MinorToMajor(inv.Total),
		PrivateNote:                  "Stripe Invoice ID: " + inv.ID,
		CurrencyRef:                  currencyRef(inv.Currency),
		AllowOnlineACHPayment:        false,
		AllowOnlineCreditCardPayment: false,
	}
	doc.GlobalTaxCalculation, doc.TxnTaxDetail = txnTax(coder, totalTax)

	var created quickbooks.Invoice
	if err := ledger.Create(ctx, quickbooks.EntityInvoice, doc, &created); err != nil {
		return "", services.WrapLedgerError(err, "failed to create invoice in QuickBooks")
	}
	b.log.Info("invoice created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("stripe_invoice_id", inv.ID),
		zap.String("qbo_invoice_id", created.ID))

	if err := b.record(ctx, tc, models.MappingInvoice, inv.ID, created.ID, ""); err != nil {
		return "", err
	}
	return created.ID, nil
}

// InvoicePaidProcessor records a QBO payment against the invoice for a paid
// Stripe invoice, creating the invoice first when it was never synced.
type InvoicePaidProcessor struct {
	base
}

func NewInvoicePaidProcessor(d Deps) *InvoicePaidProcessor {
	return &InvoicePaidProcessor{base: newBase(d, "invoice_paid")}
}

func (p *InvoicePaidProcessor) EventType() models.EventType {
	return models.EventInvoicePaid
}

func (p *InvoicePaidProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.InvoicePaid)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	invoiceID := payload.Invoice.ID

	if m, err := p.existing(ctx, tc, models.MappingPayment, invoiceID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Invoice payment already processed", m.TargetID), nil
	}

	sc := p.clients.Stripe(tc)
	inv, err := sc.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fetchFailed(err, "invoice", invoiceID)
	}

	ledger := p.clients.Ledger(tc)
	qboInvoiceID, err := p.ensureInvoice(ctx, tc, sc, ledger, inv)
	if err != nil {
		return nil, err
	}

	name, email, err := invoiceCustomer(ctx, sc, inv)
	if err != nil {
		return nil, err
	}
	customerID, err := p.resolver.ResolveCustomer(ctx, ledger, name, email)
	if err != nil {
		return nil, err
	}
	methodID, err := p.resolver.ResolvePaymentMethod(ctx, ledger, stripePaymentType)
	if err != nil {
		return nil, err
	}

	amount := models.MinorToMajor(inv.AmountPaid)
	doc := quickbooks.Payment{
		CustomerRef:         quickbooks.Ref{Value: customerID},
		TotalAmt:            amount,
		TxnDate:             txnDate(inv.Created),
		PaymentRefNum:       utils.Truncate(utils.FirstNonEmpty(inv.PaymentIntent.ID, "stripe_"+inv.ID), maxPaymentRefNum),
		PaymentMethodRef:    quickbooks.NewRef(methodID),
		DepositToAccountRef: p.depositAccount(ctx, ledger, tc),
		CurrencyRef:         currencyRef(inv.Currency),
		PrivateNote:         fmt.Sprintf("Stripe Invoice Payment: %s", inv.ID),
		Line: []quickbooks.Line{{
			Amount:    amount,
			LinkedTxn: []quickbooks.LinkedTxn{{TxnID: qboInvoiceID, TxnType: quickbooks.EntityInvoice}},
		}},
	}

	var created quickbooks.Payment
	if err := ledger.Create(ctx, quickbooks.EntityPayment, doc, &created); err != nil {
		return nil, services.WrapLedgerError(err, "failed to create payment for QuickBooks invoice %s", qboInvoiceID)
	}
	p.log.Info("payment created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("stripe_invoice_id", invoiceID),
		zap.String("qbo_payment_id", created.ID))

	if err := p.record(ctx, tc, models.MappingPayment, invoiceID, created.ID, qboInvoiceID); err != nil {
		return nil, err
	}
	return success("Payment created in QuickBooks", created.ID, map[string]any{
		"qbo_payment_id":    created.ID,
		"qbo_invoice_id":    qboInvoiceID,
		"stripe_invoice_id": invoiceID,
	}), nil
}

func (p *InvoicePaidProcessor) ensureInvoice(ctx context.Context, tc *models.TenantContext, sc stripe.API, ledger quickbooks.API, inv *stripe.Invoice) (string, error) {
	m, err := p.existing(ctx, tc, models.MappingInvoice, inv.ID)
	if err != nil {
		return "", err
	}
	if m != nil {
		return m.TargetID, nil
	}
	id, err := p.createInvoice(ctx, tc, sc, ledger, inv)
	if errors.Is(err, syncerr.ErrDuplicate) {
		// invoice.finalized mapped it concurrently
		if m, findErr := p.existing(ctx, tc, models.MappingInvoice, inv.ID); findErr == nil && m != nil {
			return m.TargetID, nil
		}
	}
	return id, err
}

func unexpectedPayload(event *models.ProviderEvent) error {
	return syncerr.Validation("unexpected payload %T for %s", event.Payload, event.Type)
}
