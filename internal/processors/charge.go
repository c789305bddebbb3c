package processors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"go.uber.org/zap"
)

// ChargeSucceededProcessor books a standalone charge as a QBO invoice plus
// a payment applied to it.
type ChargeSucceededProcessor struct {
	base
}

func NewChargeSucceededProcessor(d Deps) *ChargeSucceededProcessor {
	return &ChargeSucceededProcessor{base: newBase(d, "charge_succeeded")}
}

func (p *ChargeSucceededProcessor) EventType() models.EventType {
	return models.EventChargeSucceeded
}

func (p *ChargeSucceededProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.ChargeSucceeded)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	charge := payload.Charge

	if m, err := p.existing(ctx, tc, models.MappingCharge, charge.ID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Charge already processed", m.TargetID), nil
	}

	email := utils.FirstNonEmpty(charge.BillingDetails.Email, charge.ReceiptEmail)
	if email == "" {
		return nil, syncerr.Validation("customer email is required but missing on charge %s", charge.ID)
	}
	name := utils.FirstNonEmpty(charge.BillingDetails.Name, email)

	sc := p.clients.Stripe(tc)
	ledger := p.clients.Ledger(tc)

	customerID, err := p.resolver.ResolveCustomer(ctx, ledger, name, email)
	if err != nil {
		return nil, err
	}

	invoiceID, err := p.chargeInvoice(ctx, tc, sc, ledger, &charge, customerID)
	if err != nil {
		return nil, err
	}

	methodID, err := p.resolver.ResolvePaymentMethod(ctx, ledger, stripePaymentType)
	if err != nil {
		return nil, err
	}
	amount := models.MinorToMajor(charge.Amount)
	doc := quickbooks.Payment{
		CustomerRef:         quickbooks.Ref{Value: customerID},
		TotalAmt:            amount,
		TxnDate:             txnDate(charge.Created),
		PaymentRefNum:       utils.Truncate("stripe_"+charge.ID, maxPaymentRefNum),
		PaymentMethodRef:    quickbooks.NewRef(methodID),
		DepositToAccountRef: p.depositAccount(ctx, ledger, tc),
		CurrencyRef:         currencyRef(charge.Currency),
		PrivateNote:         "Stripe Charge: " + charge.ID,
		Line: []quickbooks.Line{{
			Amount:    amount,
			LinkedTxn: []quickbooks.LinkedTxn{{TxnID: invoiceID, TxnType: quickbooks.EntityInvoice}},
		}},
	}
	var created quickbooks.Payment
	if err := ledger.Create(ctx, quickbooks.EntityPayment, doc, &created); err != nil {
		return nil, services.WrapLedgerError(err, "failed to create payment for QuickBooks invoice %s", invoiceID)
	}
	p.log.Info("charge payment created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("charge_id", charge.ID),
		zap.String("qbo_payment_id", created.ID),
		zap.String("qbo_invoice_id", invoiceID))

	if err := p.record(ctx, tc, models.MappingCharge, charge.ID, created.ID, invoiceID); err != nil {
		return nil, err
	}
	return success("Payment created in QuickBooks", created.ID, map[string]any{
		"qbo_payment_id":   created.ID,
		"qbo_invoice_id":   invoiceID,
		"stripe_charge_id": charge.ID,
	}), nil
}

// chargeInvoice returns the QBO invoice for the charge, creating it once.
// The invoice is mapped on its own so a failed payment does not duplicate
// it on retry.
func (p *ChargeSucceededProcessor) chargeInvoice(ctx context.Context, tc *models.TenantContext, sc stripe.API, ledger quickbooks.API, charge *stripe.Charge, customerID string) (string, error) {
	m, err := p.existing(ctx, tc, models.MappingChargeInvoice, charge.ID)
	if err != nil {
		return "", err
	}
	if m != nil {
		return m.TargetID, nil
	}

	name := p.productName(ctx, sc, charge)
	coder, err := p.tax.Coder(ctx, ledger, tc)
	if err != nil {
		return "", err
	}
	lines, _, err := p.buildLines(ctx, ledger, coder, []lineInput{{
		ItemName:  name,
		NetMinor:  charge.Amount,
		UnitPrice: models.MinorToMajor(charge.Amount),
		Qty:       1,
		Taxable:   true,
	}})
	if err != nil {
		return "", err
	}

	doc := quickbooks.Invoice{
		CustomerRef:                  quickbooks.Ref{Value: customerID},
		Line:                         lines,
		TxnDate:                      txnDate(charge.Created),
		DueDate:                      txnDate(charge.Created),
		TotalAmt:                     models.MinorToMajor(charge.Amount),
		PrivateNote:                  "Stripe Charge: " + charge.ID,
		CurrencyRef:                  currencyRef(charge.Currency),
		AllowOnlineACHPayment:        false,
		AllowOnlineCreditCardPayment: false,
	}
	if coder.Global() {
		doc.GlobalTaxCalculation = quickbooks.GlobalTaxExcluded
	}

	var created quickbooks.Invoice
	if err := ledger.Create(ctx, quickbooks.EntityInvoice, doc, &created); err != nil {
		return "", services.WrapLedgerError(err, "failed to create invoice in QuickBooks")
	}
	if err := p.record(ctx, tc, models.MappingChargeInvoice, charge.ID, created.ID, ""); err != nil {
		if errors.Is(err, syncerr.ErrDuplicate) {
			if m, findErr := p.existing(ctx, tc, models.MappingChargeInvoice, charge.ID); findErr == nil && m != nil {
				return m.TargetID, nil
			}
		}
		return "", err
	}
	return created.ID, nil
}

// productName names the charge after its first checkout line, else its
// description.
func (p *ChargeSucceededProcessor) productName(ctx context.Context, sc stripe.API, charge *stripe.Charge) string {
	if intentID := charge.PaymentIntent.ID; intentID != "" {
		session, err := sc.FindCheckoutSession(ctx, intentID)
		if err != nil {
			p.log.Warn("checkout session lookup failed", zap.String("payment_intent_id", intentID), zap.Error(err))
		} else if session != nil {
			items, err := sc.ListCheckoutLineItems(ctx, session.ID)
			if err != nil {
				p.log.Warn("checkout line items lookup failed", zap.String("session_id", session.ID), zap.Error(err))
			} else if len(items) > 0 {
				if name := utils.FirstNonEmpty(items[0].Description, productName(items[0].Price)); name != "" {
					return name
				}
			}
		}
	}
	return utils.FirstNonEmpty(charge.Description, "Payment")
}

// ChargeFailedProcessor appends a failure note to the QBO customer.
type ChargeFailedProcessor struct {
	base
}

func NewChargeFailedProcessor(d Deps) *ChargeFailedProcessor {
	return &ChargeFailedProcessor{base: newBase(d, "charge_failed")}
}

func (p *ChargeFailedProcessor) EventType() models.EventType {
	return models.EventChargeFailed
}

func (p *ChargeFailedProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.ChargeFailed)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	charge := payload.Charge

	if m, err := p.existing(ctx, tc, models.MappingChargeFailure, charge.ID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Charge failure already logged", m.TargetID), nil
	}

	email := utils.FirstNonEmpty(charge.BillingDetails.Email, charge.ReceiptEmail)
	if email == "" {
		return nil, syncerr.Validation("customer email is required but missing on charge %s", charge.ID)
	}
	name := utils.FirstNonEmpty(charge.BillingDetails.Name, "Unknown Customer")

	ledger := p.clients.Ledger(tc)
	customerID, err := p.resolver.ResolveCustomer(ctx, ledger, name, email)
	if err != nil {
		return nil, err
	}

	var customer quickbooks.Customer
	if err := ledger.Read(ctx, quickbooks.EntityCustomer, customerID, &customer); err != nil {
		return nil, services.WrapLedgerError(err, "failed to fetch customer %s", customerID)
	}

	note := FailureNote(&charge)
	update := quickbooks.Customer{
		ID:        customerID,
		SyncToken: customer.SyncToken,
		Sparse:    true,
		Notes:     strings.TrimSpace(customer.Notes + "\n\n" + note),
	}
	updateErr := ledger.Update(ctx, quickbooks.EntityCustomer, update, nil)

	// The failure is logged whether or not the note made it.
	if err := p.record(ctx, tc, models.MappingChargeFailure, charge.ID, customerID, ""); err != nil {
		return nil, err
	}

	if updateErr != nil {
		p.log.Warn("customer note update failed",
			zap.String("charge_id", charge.ID),
			zap.String("customer_id", customerID),
			zap.Error(updateErr))
		return nil, syncerr.Partial(updateErr, "Failed charge logged but note update failed").
			WithDetail("qbo_customer_id", customerID)
	}
	return success("Charge failure note added to customer", customerID, map[string]any{
		"qbo_customer_id":  customerID,
		"stripe_charge_id": charge.ID,
		"note_content":     note,
	}), nil
}

// FailureNote renders the text appended to the customer's notes.
func FailureNote(charge *stripe.Charge) string {
	var b strings.Builder
	b.WriteString("Stripe Charge Failed\n")
	b.WriteString("-------------------\n")
	fmt.Fprintf(&b, "Date: %s\n", time.Unix(charge.Created, 0).UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Amount: %.2f %s\n", models.MinorToMajor(charge.Amount), strings.ToUpper(charge.Currency))
	fmt.Fprintf(&b, "Failure Reason: %s\n", charge.FailureMessage)
	fmt.Fprintf(&b, "Failure Code: %s\n", charge.FailureCode)
	fmt.Fprintf(&b, "Charge ID: %s\n", charge.ID)
	if d := charge.PaymentMethodDetails; d != nil && d.Card != nil && d.Card.Last4 != "" {
		fmt.Fprintf(&b, "Card: **** **** **** %s\n", d.Card.Last4)
	}
	return b.String()
}
