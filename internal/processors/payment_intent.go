package processors

import (
	"context"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"go.uber.org/zap"
)

// PaymentIntentProcessor books a succeeded payment intent as a QBO sales
// receipt.
type PaymentIntentProcessor struct {
	base
}

func NewPaymentIntentProcessor(d Deps) *PaymentIntentProcessor {
	return &PaymentIntentProcessor{base: newBase(d, "payment_intent")}
}

func (p *PaymentIntentProcessor) EventType() models.EventType {
	return models.EventPaymentIntentSucceeded
}

// paymentContext is everything fetched from Stripe for one payment intent.
type paymentContext struct {
	intent   *stripe.PaymentIntent
	charge   *stripe.Charge
	invoice  *stripe.Invoice
	customer *stripe.Customer
}

func (p *PaymentIntentProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.PaymentIntentSucceeded)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	intentID := payload.PaymentIntent.ID

	if m, err := p.existing(ctx, tc, models.MappingSalesReceipt, intentID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Payment intent already processed", m.TargetID), nil
	}

	sc := p.clients.Stripe(tc)
	pc, err := p.load(ctx, sc, intentID)
	if err != nil {
		return nil, err
	}

	name, email := p.customerOf(pc)
	if email == "" {
		return nil, syncerr.Validation("customer email is required but missing on payment intent %s", intentID)
	}

	inputs, err := p.lineInputs(ctx, sc, pc)
	if err != nil {
		return nil, err
	}

	ledger := p.clients.Ledger(tc)
	customerID, err := p.resolver.ResolveCustomer(ctx, ledger, name, email)
	if err != nil {
		return nil, err
	}
	coder, err := p.tax.Coder(ctx, ledger, tc)
	if err != nil {
		return nil, err
	}
	lines, totalTax, err := p.buildLines(ctx, ledger, coder, inputs)
	if err != nil {
		return nil, err
	}

	methodType := pc.charge.PaymentMethodType()
	if methodType == "" && len(pc.intent.PaymentMethodTypes) > 0 {
		methodType = pc.intent.PaymentMethodTypes[0]
	}
	methodID, err := p.resolver.ResolvePaymentMethod(ctx, ledger, utils.FirstNonEmpty(methodType, defaultPaymentType))
	if err != nil {
		return nil, err
	}

	refNum := intentID
	if pc.charge != nil {
		refNum = pc.charge.ID
	}
	doc := quickbooks.SalesReceipt{
		CustomerRef:         quickbooks.Ref{Value: customerID},
		Line:                lines,
		TxnDate:             txnDate(pc.intent.Created),
		TotalAmt:            models.MinorToMajor(pc.intent.Amount),
		PaymentRefNum:       utils.Truncate(refNum, maxPaymentRefNum),
		PaymentMethodRef:    quickbooks.NewRef(methodID),
		DepositToAccountRef: p.depositAccount(ctx, ledger, tc),
		CurrencyRef:         currencyRef(pc.intent.Currency),
		PrivateNote:         "Stripe Payment Intent ID: " + intentID,
	}
	doc.GlobalTaxCalculation, doc.TxnTaxDetail = txnTax(coder, totalTax)

	var created quickbooks.SalesReceipt
	if err := ledger.Create(ctx, quickbooks.EntitySalesReceipt, doc, &created); err != nil {
		return nil, services.WrapLedgerError(err, "failed to create sales receipt in QuickBooks")
	}
	p.log.Info("sales receipt created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("payment_intent_id", intentID),
		zap.String("qbo_sales_receipt_id", created.ID))

	if err := p.record(ctx, tc, models.MappingSalesReceipt, intentID, created.ID, ""); err != nil {
		return nil, err
	}
	return success("Sales receipt created in QuickBooks", created.ID, map[string]any{
		"qbo_sales_receipt_id":     created.ID,
		"stripe_payment_intent_id": intentID,
	}), nil
}

func (p *PaymentIntentProcessor) load(ctx context.Context, sc stripe.API, intentID string) (*paymentContext, error) {
	intent, err := sc.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, fetchFailed(err, "payment intent", intentID)
	}
	pc := &paymentContext{intent: intent}

	switch {
	case intent.Charges != nil && len(intent.Charges.Data) > 0:
		pc.charge = &intent.Charges.Data[0]
	case intent.LatestCharge.Object != nil:
		pc.charge = intent.LatestCharge.Object
	case intent.LatestCharge.ID != "":
		if pc.charge, err = sc.GetCharge(ctx, intent.LatestCharge.ID); err != nil {
			return nil, fetchFailed(err, "charge", intent.LatestCharge.ID)
		}
	}

	if intent.Invoice.ID != "" {
		if pc.invoice, err = sc.GetInvoice(ctx, intent.Invoice.ID); err != nil {
			return nil, fetchFailed(err, "invoice", intent.Invoice.ID)
		}
	}

	if intent.Customer.Object != nil {
		pc.customer = intent.Customer.Object
	} else if intent.Customer.ID != "" && !p.hasEmail(pc) {
		if pc.customer, err = sc.GetCustomer(ctx, intent.Customer.ID); err != nil {
			return nil, fetchFailed(err, "customer", intent.Customer.ID)
		}
	}
	return pc, nil
}

func (p *PaymentIntentProcessor) hasEmail(pc *paymentContext) bool {
	_, email := p.customerOf(pc)
	return email != ""
}

// customerOf picks the payer from the charge billing details, then the
// invoice, then the Stripe customer.
func (p *PaymentIntentProcessor) customerOf(pc *paymentContext) (string, string) {
	var name, email string
	if pc.charge != nil {
		name = pc.charge.BillingDetails.Name
		email = utils.FirstNonEmpty(pc.charge.BillingDetails.Email, pc.charge.ReceiptEmail)
	}
	if pc.invoice != nil {
		name = utils.FirstNonEmpty(name, pc.invoice.CustomerName)
		email = utils.FirstNonEmpty(email, pc.invoice.CustomerEmail)
	}
	if pc.customer != nil {
		name = utils.FirstNonEmpty(name, pc.customer.Name)
		email = utils.FirstNonEmpty(email, pc.customer.Email)
	}
	email = utils.FirstNonEmpty(email, pc.intent.ReceiptEmail)
	return name, email
}

// lineInputs takes lines from the checkout session, else the invoice, else
// books the whole amount as one line.
func (p *PaymentIntentProcessor) lineInputs(ctx context.Context, sc stripe.API, pc *paymentContext) ([]lineInput, error) {
	session, err := sc.FindCheckoutSession(ctx, pc.intent.ID)
	if err != nil {
		return nil, fetchFailed(err, "checkout session for", pc.intent.ID)
	}
	if session != nil {
		items, err := sc.ListCheckoutLineItems(ctx, session.ID)
		if err != nil {
			return nil, fetchFailed(err, "checkout line items for", session.ID)
		}
		if len(items) > 0 {
			return checkoutLines(items, "Product"), nil
		}
	}

	if pc.invoice != nil && len(pc.invoice.Lines.Data) > 0 {
		return invoiceLines(pc.invoice), nil
	}

	var chargeDescription string
	if pc.charge != nil {
		chargeDescription = pc.charge.Description
	}
	name := utils.FirstNonEmpty(pc.intent.Description, chargeDescription, "Stripe Payment")
	return []lineInput{{
		ItemName:  name,
		NetMinor:  pc.intent.Amount,
		UnitPrice: models.MinorToMajor(pc.intent.Amount),
		Qty:       1,
	}}, nil
}
