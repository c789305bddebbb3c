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

// CreditNoteProcessor books a Stripe credit note as a QBO credit memo.
type CreditNoteProcessor struct {
	base
}

func NewCreditNoteProcessor(d Deps) *CreditNoteProcessor {
	return &CreditNoteProcessor{base: newBase(d, "credit_note")}
}

func (p *CreditNoteProcessor) EventType() models.EventType {
	return models.EventCreditNoteCreated
}

func (p *CreditNoteProcessor) Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error) {
	payload, ok := event.Payload.(models.CreditNoteCreated)
	if !ok {
		return nil, unexpectedPayload(event)
	}
	noteID := payload.CreditNote.ID

	if m, err := p.existing(ctx, tc, models.MappingCreditMemo, noteID); err != nil || m != nil {
		if err != nil {
			return nil, err
		}
		return skipped("Credit note already processed", m.TargetID), nil
	}

	sc := p.clients.Stripe(tc)
	note, err := sc.GetCreditNote(ctx, noteID)
	if err != nil {
		return nil, fetchFailed(err, "credit note", noteID)
	}
	if len(note.Lines.Data) == 0 {
		return nil, syncerr.Validation("credit note %s has no line items", noteID)
	}

	name, email, err := p.customerOf(ctx, sc, note)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, syncerr.Validation("customer email is required but missing on credit note %s", noteID)
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
	lines, totalTax, err := p.buildLines(ctx, ledger, coder, creditNoteLines(note))
	if err != nil {
		return nil, err
	}

	doc := quickbooks.CreditMemo{
		DocNumber:   utils.Truncate(note.Number, maxDocNumber),
		CustomerRef: quickbooks.Ref{Value: customerID},
		Line:        lines,
		TxnDate:     txnDate(note.Created),
		TotalAmt:    models.MinorToMajor(note.Amount),
		CurrencyRef: currencyRef(note.Currency),
		PrivateNote: "Stripe Credit Note ID: " + note.ID,
	}
	doc.GlobalTaxCalculation, doc.TxnTaxDetail = txnTax(coder, totalTax)

	var created quickbooks.CreditMemo
	if err := ledger.Create(ctx, quickbooks.EntityCreditMemo, doc, &created); err != nil {
		return nil, services.WrapLedgerError(err, "failed to create credit memo in QuickBooks")
	}
	p.log.Info("credit memo created",
		zap.String("tenant_id", tc.TenantID.String()),
		zap.String("credit_note_id", noteID),
		zap.String("qbo_credit_memo_id", created.ID))

	if err := p.record(ctx, tc, models.MappingCreditMemo, noteID, created.ID, ""); err != nil {
		return nil, err
	}
	return success("Credit memo created in QuickBooks", created.ID, map[string]any{
		"qbo_credit_memo_id":    created.ID,
		"stripe_credit_note_id": noteID,
	}), nil
}

// customerOf reads the customer from the credited invoice, falling back to
// the credit note's own customer.
func (p *CreditNoteProcessor) customerOf(ctx context.Context, sc stripe.API, note *stripe.CreditNote) (string, string, error) {
	if invoiceID := note.Invoice.ID; invoiceID != "" {
		inv := note.Invoice.Object
		if inv == nil {
			fetched, err := sc.GetInvoice(ctx, invoiceID)
			if err != nil {
				return "", "", fetchFailed(err, "invoice", invoiceID)
			}
			inv = fetched
		}
		name, email, err := invoiceCustomer(ctx, sc, inv)
		if err != nil || email != "" {
			return name, email, err
		}
	}

	cust := note.Customer.Object
	if cust == nil && note.Customer.ID != "" {
		fetched, err := sc.GetCustomer(ctx, note.Customer.ID)
		if err != nil {
			return "", "", fetchFailed(err, "customer", note.Customer.ID)
		}
		cust = fetched
	}
	if cust == nil {
		return "", "", nil
	}
	return cust.Name, cust.Email, nil
}

// creditNoteLines prices each line at its net amount divided by quantity.
func creditNoteLines(note *stripe.CreditNote) []lineInput {
	inputs := make([]lineInput, 0, len(note.Lines.Data))
	for _, line := range note.Lines.Data {
		name := utils.FirstNonEmpty(line.Description, "Credit")
		net := line.NetAmount()
		inputs = append(inputs, lineInput{
			ItemName:    name,
			Description: name,
			NetMinor:    net,
			UnitPrice:   unitPrice(net, line.Quantity),
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
