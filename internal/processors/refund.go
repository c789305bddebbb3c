package processors

import (
	"context"
	"fmt"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"go.uber.org/zap"
)

const (
	refundItemName        = "Refund"
	refundItemDescription = "Refund for returned products or services"
)

// RefundProcessor books a Stripe refund as a QBO refund receipt against a
// single non-taxable "Refund" item.
type RefundProcessor struct {
	base
}

func NewRefundProcessor(d Deps) *RefundProcessor {
	return &RefundProcessor{base: newBase(d, "refund")}
}

func (p *RefundProcessor) EventType() models.EventType {
	return models.EventRefundCreated
}

func (p *RefundProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.RefundCreated)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	refund := payload.Refund

	if m, err := p.existing(ctx, tc, models.MappingRefundReceipt, refund.ID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Refund already processed", m.TargetID), nil
	}

	sc := p.clients.Stripe(tc)
	charge, intent, err := p.load(ctx, sc, &refund)
	if err != nil {
		return nil, err
	}
	name, email, err := p.customerOf(ctx, sc, charge, intent)
	if err != nil {
		return nil, err
	}

	ledger := p.clients.Ledger(tc)
	coder, err := p.tax.Coder(ctx, ledger, tc)
	if err != nil {
		return nil, err
	}
	taxCode := quickbooks.TaxCodeExempt
	if coder.Global() {
		if taxCode, err = coder.RequireExempt(); err != nil {
			return nil, err
		}
	}

	customerID, err := p.resolver.ResolveCustomer(ctx, ledger, name, email)
	if err != nil {
		return nil, err
	}
	itemID, err := p.resolver.ResolveItem(ctx, ledger, services.ItemSpec{
		Name:        refundItemName,
		Description: refundItemDescription,
		Taxable:     false,
	})
	if err != nil {
		return nil, err
	}

	methodType := charge.PaymentMethodType()
	if methodType == "" && intent != nil && len(intent.PaymentMethodTypes) > 0 {
		methodType = intent.PaymentMethodTypes[0]
	}
	methodID, err := p.resolver.ResolvePaymentMethod(ctx, ledger, utils.FirstNonEmpty(methodType, defaultPaymentType))
	if err != nil {
		return nil, err
	}

	amount := models.MinorToMajor(refund.Amount)
	doc := quickbooks.RefundReceipt{
		CustomerRef: quickbooks.Ref{Value: customerID},
		Line: []quickbooks.Line{{
			DetailType:  quickbooks.DetailTypeSalesItem,
			Amount:      amount,
			Description: refundItemName,
			SalesItemLineDetail: &quickbooks.SalesItemLineDetail{
				ItemRef:    quickbooks.Ref{Value: itemID},
				Qty:        1,
				UnitPrice:  amount,
				TaxCodeRef: &quickbooks.Ref{Value: taxCode},
			},
		}},
		TxnDate:             txnDate(refund.Created),
		TotalAmt:            amount,
		PaymentRefNum:       utils.Truncate(refund.ID, maxPaymentRefNum),
		PaymentMethodRef:    quickbooks.NewRef(methodID),
		DepositToAccountRef: p.depositAccount(ctx, ledger, tc),
		CurrencyRef:         currencyRef(refund.Currency),
		PrivateNote:         fmt.Sprintf("Stripe Refund for Charge: %s (Payment Intent: %s)", refund.Charge.ID, refund.PaymentIntent.ID),
	}
	if coder.Global() {
		doc.GlobalTaxCalculation = quickbooks.GlobalTaxExcluded
	}

	var created quickbooks.RefundReceipt
	if err := ledger.Create(ctx, quickbooks.EntityRefundReceipt, doc, &created); err != nil {
		return nil, services.WrapLedgerError(err, "failed to create refund receipt in QuickBooks")
	}
	p.log.Info("refund receipt created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("refund_id", refund.ID),
		zap.String("qbo_refund_receipt_id", created.ID))

	if err := p.record(ctx, tc, models.MappingRefundReceipt, refund.ID, created.ID, ""); err != nil {
		return nil, err
	}
	return success("Refund receipt created in QuickBooks", created.ID, map[string]any{
		"qbo_refund_receipt_id": created.ID,
		"stripe_refund_id":      refund.ID,
	}), nil
}

func (p *RefundProcessor) load(ctx context.Context, sc stripe.API, refund *stripe.Refund) (*stripe.Charge, *stripe.PaymentIntent, error) {
	var (
		charge *stripe.Charge
		intent *stripe.PaymentIntent
		err    error
	)
	switch {
	case refund.Charge.Object != nil:
		charge = refund.Charge.Object
	case refund.Charge.ID != "":
		if charge, err = sc.GetCharge(ctx, refund.Charge.ID); err != nil {
			return nil, nil, fetchFailed(err, "charge", refund.Charge.ID)
		}
	}
	switch {
	case refund.PaymentIntent.Object != nil:
		intent = refund.PaymentIntent.Object
	case refund.PaymentIntent.ID != "":
		if intent, err = sc.GetPaymentIntent(ctx, refund.PaymentIntent.ID); err != nil {
			return nil, nil, fetchFailed(err, "payment intent", refund.PaymentIntent.ID)
		}
	}
	return charge, intent, nil
}

// customerOf prefers the Stripe customer on the payment intent, then the
// charge billing details. A customer without any email gets a synthetic
// address so the refund can still be booked.
func (p *RefundProcessor) customerOf(ctx context.Context, sc stripe.API, charge *stripe.Charge, intent *stripe.PaymentIntent) (string, string, error) {
	var customerID, name, email string
	if intent != nil {
		customerID = intent.Customer.ID
	}
	if customerID == "" && charge != nil {
		customerID = charge.Customer.ID
	}
	if customerID != "" {
		cust, err := sc.GetCustomer(ctx, customerID)
		if err != nil {
			return "", "", fetchFailed(err, "customer", customerID)
		}
		email = cust.Email
		name = utils.FirstNonEmpty(cust.Name, cust.Email, "Customer "+customerID)
	}
	if email == "" && charge != nil {
		email = charge.BillingDetails.Email
		name = utils.FirstNonEmpty(charge.BillingDetails.Name, name)
	}
	if email == "" {
		if customerID == "" {
			return "", "", syncerr.Validation("customer information could not be determined")
		}
		email = fmt.Sprintf("customer_%s@stripe.com", customerID)
	}
	return utils.FirstNonEmpty(name, "Customer"), email, nil
}
