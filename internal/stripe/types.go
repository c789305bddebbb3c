package stripe

import (
	"bytes"
	"encoding/json"
)

// Expandable holds a field that Stripe returns either as an id string or,
// when requested through expand[], as the full object.
type Expandable[T any] struct {
	ID     string
	Object *T
}

func (e *Expandable[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}

	var obj T
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return err
	}
	e.ID = ref.ID
	e.Object = &obj
	return nil
}

func (e Expandable[T]) MarshalJSON() ([]byte, error) {
	if e.Object != nil {
		return json.Marshal(e.Object)
	}
	if e.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(e.ID)
}

func (e Expandable[T]) IsZero() bool {
	return e.ID == "" && e.Object == nil
}

type List[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	URL     string `json:"url"`
}

type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

type Customer struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Deleted     bool              `json:"deleted"`
	Metadata    map[string]string `json:"metadata"`
}

type Product struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Active       bool              `json:"active"`
	DefaultPrice Expandable[Price] `json:"default_price"`
	Metadata     map[string]string `json:"metadata"`
}

type Price struct {
	ID         string              `json:"id"`
	Currency   string              `json:"currency"`
	UnitAmount *int64              `json:"unit_amount"`
	Product    Expandable[Product] `json:"product"`
}

type TaxRate struct {
	ID                  string   `json:"id"`
	DisplayName         string   `json:"display_name"`
	Percentage          float64  `json:"percentage"`
	EffectivePercentage *float64 `json:"effective_percentage"`
	Inclusive           bool     `json:"inclusive"`
	Jurisdiction        string   `json:"jurisdiction"`
}

type TaxAmount struct {
	Amount           int64               `json:"amount"`
	Inclusive        bool                `json:"inclusive"`
	TaxRate          Expandable[TaxRate] `json:"tax_rate"`
	TaxabilityReason string              `json:"taxability_reason"`
	TaxableAmount    *int64              `json:"taxable_amount"`
}

type Invoice struct {
	ID                string                    `json:"id"`
	Number            string                    `json:"number"`
	Status            string                    `json:"status"`
	Customer          Expandable[Customer]      `json:"customer"`
	CustomerEmail     string                    `json:"customer_email"`
	CustomerName      string                    `json:"customer_name"`
	Currency          string                    `json:"currency"`
	AmountDue         int64                     `json:"amount_due"`
	AmountPaid        int64                     `json:"amount_paid"`
	Subtotal          int64                     `json:"subtotal"`
	Total             int64                     `json:"total"`
	Tax               *int64                    `json:"tax"`
	TotalExcludingTax *int64                    `json:"total_excluding_tax"`
	Created           int64                     `json:"created"`
	DueDate           *int64                    `json:"due_date"`
	BillingReason     string                    `json:"billing_reason"`
	PaymentIntent     Expandable[PaymentIntent] `json:"payment_intent"`
	Lines             List[InvoiceLineItem]     `json:"lines"`
	Description       string                    `json:"description"`
}

type InvoiceLineItem struct {
	ID                 string      `json:"id"`
	Description        string      `json:"description"`
	Currency           string      `json:"currency"`
	Amount             int64       `json:"amount"`
	AmountExcludingTax *int64      `json:"amount_excluding_tax"`
	Quantity           int64       `json:"quantity"`
	Price              *Price      `json:"price"`
	TaxAmounts         []TaxAmount `json:"tax_amounts"`
}

// NetAmount is the line amount before tax, falling back to the gross amount
// on API versions that omit amount_excluding_tax.
func (l InvoiceLineItem) NetAmount() int64 {
	if l.AmountExcludingTax != nil {
		return *l.AmountExcludingTax
	}
	return l.Amount
}

func (l InvoiceLineItem) TaxTotal() int64 {
	return sumTaxAmounts(l.TaxAmounts)
}

type BillingDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type CardDetails struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type PaymentMethodDetails struct {
	Type string       `json:"type"`
	Card *CardDetails `json:"card"`
}

type Charge struct {
	ID                   string                    `json:"id"`
	Amount               int64                     `json:"amount"`
	AmountRefunded       int64                     `json:"amount_refunded"`
	Currency             string                    `json:"currency"`
	Created              int64                     `json:"created"`
	Status               string                    `json:"status"`
	Description          string                    `json:"description"`
	ReceiptEmail         string                    `json:"receipt_email"`
	Customer             Expandable[Customer]      `json:"customer"`
	BillingDetails       BillingDetails            `json:"billing_details"`
	PaymentIntent        Expandable[PaymentIntent] `json:"payment_intent"`
	Invoice              Expandable[Invoice]       `json:"invoice"`
	PaymentMethodDetails *PaymentMethodDetails     `json:"payment_method_details"`
	FailureCode          string                    `json:"failure_code"`
	FailureMessage       string                    `json:"failure_message"`
}

// PaymentMethodType returns the instrument type, "" when unknown.
func (c *Charge) PaymentMethodType() string {
	if c == nil || c.PaymentMethodDetails == nil {
		return ""
	}
	return c.PaymentMethodDetails.Type
}

type PaymentIntent struct {
	ID                 string               `json:"id"`
	Amount             int64                `json:"amount"`
	AmountReceived     int64                `json:"amount_received"`
	Currency           string               `json:"currency"`
	Created            int64                `json:"created"`
	Status             string               `json:"status"`
	Description        string               `json:"description"`
	ReceiptEmail       string               `json:"receipt_email"`
	Customer           Expandable[Customer] `json:"customer"`
	Invoice            Expandable[Invoice]  `json:"invoice"`
	LatestCharge       Expandable[Charge]   `json:"latest_charge"`
	Charges            *List[Charge]        `json:"charges"`
	PaymentMethodTypes []string             `json:"payment_method_types"`
	Metadata           map[string]string    `json:"metadata"`
}

type CustomerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CheckoutSession struct {
	ID              string           `json:"id"`
	AmountSubtotal  int64            `json:"amount_subtotal"`
	AmountTotal     int64            `json:"amount_total"`
	Currency        string           `json:"currency"`
	CustomerDetails *CustomerDetails `json:"customer_details"`
	PaymentIntent   string           `json:"payment_intent"`
}

type LineItemTax struct {
	Amount int64   `json:"amount"`
	Rate   TaxRate `json:"rate"`
}

// LineItem is shared by checkout session and quote line item listings.
type LineItem struct {
	ID             string        `json:"id"`
	Description    string        `json:"description"`
	Currency       string        `json:"currency"`
	Quantity       int64         `json:"quantity"`
	AmountSubtotal int64         `json:"amount_subtotal"`
	AmountTotal    int64         `json:"amount_total"`
	AmountTax      int64         `json:"amount_tax"`
	AmountDiscount int64         `json:"amount_discount"`
	Price          *Price        `json:"price"`
	Taxes          []LineItemTax `json:"taxes"`
}

type Refund struct {
	ID            string                    `json:"id"`
	Amount        int64                     `json:"amount"`
	Currency      string                    `json:"currency"`
	Created       int64                     `json:"created"`
	Status        string                    `json:"status"`
	Reason        string                    `json:"reason"`
	Charge        Expandable[Charge]        `json:"charge"`
	PaymentIntent Expandable[PaymentIntent] `json:"payment_intent"`
	Metadata      map[string]string         `json:"metadata"`
}

type CreditNote struct {
	ID                   string                   `json:"id"`
	Number               string                   `json:"number"`
	Currency             string                   `json:"currency"`
	Amount               int64                    `json:"amount"`
	Subtotal             int64                    `json:"subtotal"`
	SubtotalExcludingTax *int64                   `json:"subtotal_excluding_tax"`
	Total                int64                    `json:"total"`
	Created              int64                    `json:"created"`
	Memo                 string                   `json:"memo"`
	Reason               string                   `json:"reason"`
	Customer             Expandable[Customer]     `json:"customer"`
	Invoice              Expandable[Invoice]      `json:"invoice"`
	Lines                List[CreditNoteLineItem] `json:"lines"`
}

type CreditNoteLineItem struct {
	ID                 string      `json:"id"`
	Type               string      `json:"type"`
	Description        string      `json:"description"`
	Amount             int64       `json:"amount"`
	AmountExcludingTax *int64      `json:"amount_excluding_tax"`
	Quantity           int64       `json:"quantity"`
	UnitAmount         *int64      `json:"unit_amount"`
	TaxAmounts         []TaxAmount `json:"tax_amounts"`
}

func (l CreditNoteLineItem) NetAmount() int64 {
	if l.AmountExcludingTax != nil {
		return *l.AmountExcludingTax
	}
	return l.Amount
}

func (l CreditNoteLineItem) TaxTotal() int64 {
	return sumTaxAmounts(l.TaxAmounts)
}

type QuoteTotalDetails struct {
	AmountDiscount int64 `json:"amount_discount"`
	AmountShipping int64 `json:"amount_shipping"`
	AmountTax      int64 `json:"amount_tax"`
}

type Quote struct {
	ID             string               `json:"id"`
	Number         string               `json:"number"`
	Status         string               `json:"status"`
	Description    string               `json:"description"`
	Currency       string               `json:"currency"`
	AmountSubtotal int64                `json:"amount_subtotal"`
	AmountTotal    int64                `json:"amount_total"`
	Created        int64                `json:"created"`
	Customer       Expandable[Customer] `json:"customer"`
	TotalDetails   *QuoteTotalDetails   `json:"total_details"`
}

func sumTaxAmounts(amounts []TaxAmount) int64 {
	var total int64
	for _, t := range amounts {
		total += t.Amount
	}
	return total
}
