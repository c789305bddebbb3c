package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.stripe.com"

// APIVersion is the Stripe-Version sent on every request. It is pinned by
// the stripe-go major version.
const APIVersion = stripego.APIVersion

type ClientOptions struct {
	APIKey string
	// Backend is shared between clients; when nil one is built from the
	// remaining options.
	Backend    stripego.Backend
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	Logger     *zap.Logger
}

// API is the read surface processors use.
type API interface {
	GetEvent(ctx context.Context, id string) (*Event, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	GetCharge(ctx context.Context, id string) (*Charge, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetCreditNote(ctx context.Context, id string) (*CreditNote, error)
	FindCheckoutSession(ctx context.Context, paymentIntentID string) (*CheckoutSession, error)
	ListCheckoutLineItems(ctx context.Context, sessionID string) ([]LineItem, error)
	ListQuoteLineItems(ctx context.Context, quoteID string) ([]LineItem, error)
}

var _ API = (*Client)(nil)

// Client performs read-only GETs against the Stripe REST API for one account.
type Client struct {
	backend stripego.Backend
	apiKey  string
}

// APIError is a non-2xx Stripe response.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe request failed: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("stripe request failed: status=%d message=%s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewBackend builds a stripe-go API backend. stripe-go retries connection
// errors and 5xx responses itself; a 429 surfaces as a temporary APIError.
func NewBackend(baseURL string, httpClient *http.Client, maxRetries int, log *zap.Logger) stripego.Backend {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(baseURL),
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripego.Int64(int64(maxRetries)),
		LeveledLogger:     log.Named("stripe").Sugar(),
		EnableTelemetry:   stripego.Bool(false),
	})
}

func NewClient(opts ClientOptions) *Client {
	backend := opts.Backend
	if backend == nil {
		backend = NewBackend(opts.BaseURL, opts.HTTPClient, opts.MaxRetries, opts.Logger)
	}
	return &Client{
		backend: backend,
		apiKey:  strings.TrimSpace(opts.APIKey),
	}
}

func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	var ev Event
	if err := c.get("/v1/events/"+url.PathEscape(id), params(ctx), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var inv Invoice
	p := params(ctx, "lines.data.price.product", "lines.data.tax_amounts.tax_rate")
	if err := c.get("/v1/invoices/"+url.PathEscape(id), p, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) GetCharge(ctx context.Context, id string) (*Charge, error) {
	var ch Charge
	if err := c.get("/v1/charges/"+url.PathEscape(id), params(ctx), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := c.get("/v1/payment_intents/"+url.PathEscape(id), params(ctx, "latest_charge"), &pi); err != nil {
		return nil, err
	}
	return &pi, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var cust Customer
	if err := c.get("/v1/customers/"+url.PathEscape(id), params(ctx), &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := c.get("/v1/products/"+url.PathEscape(id), params(ctx, "default_price"), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetTaxRate(ctx context.Context, id string) (*TaxRate, error) {
	var tr TaxRate
	if err := c.get("/v1/tax_rates/"+url.PathEscape(id), params(ctx), &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (c *Client) GetCreditNote(ctx context.Context, id string) (*CreditNote, error) {
	var cn CreditNote
	if err := c.get("/v1/credit_notes/"+url.PathEscape(id), params(ctx, "lines.data.tax_amounts.tax_rate"), &cn); err != nil {
		return nil, err
	}
	return &cn, nil
}

type checkoutSessionListParams struct {
	stripego.Params `form:"*"`
	Limit           *int64  `form:"limit"`
	PaymentIntent   *string `form:"payment_intent"`
}

// FindCheckoutSession returns the checkout session that created the payment
// intent, or nil when the payment did not come from Checkout.
func (c *Client) FindCheckoutSession(ctx context.Context, paymentIntentID string) (*CheckoutSession, error) {
	p := &checkoutSessionListParams{
		Params:        *params(ctx),
		Limit:         stripego.Int64(1),
		PaymentIntent: stripego.String(paymentIntentID),
	}
	var list List[CheckoutSession]
	if err := c.get("/v1/checkout/sessions", p, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, nil
	}
	return &list.Data[0], nil
}

type lineItemListParams struct {
	stripego.Params `form:"*"`
	Limit           *int64 `form:"limit"`
}

func (c *Client) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	return c.listLineItems(ctx, "/v1/checkout/sessions/"+url.PathEscape(sessionID)+"/line_items")
}

func (c *Client) ListQuoteLineItems(ctx context.Context, quoteID string) ([]LineItem, error) {
	return c.listLineItems(ctx, "/v1/quotes/"+url.PathEscape(quoteID)+"/line_items")
}

func (c *Client) listLineItems(ctx context.Context, path string) ([]LineItem, error) {
	p := &lineItemListParams{
		Params: *params(ctx, "data.price.product"),
		Limit:  stripego.Int64(100),
	}
	var list List[LineItem]
	if err := c.get(path, p, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// response lets stripe-go decode into this package's types.
type response struct {
	stripego.APIResource
	value any
}

func (r *response) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, r.value)
}

func (c *Client) get(path string, p stripego.ParamsContainer, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("stripe api key is empty")
	}
	err := c.backend.Call(http.MethodGet, path, c.apiKey, p, &response{value: out})
	if err == nil {
		return nil
	}

	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		return &APIError{
			StatusCode: stripeErr.HTTPStatusCode,
			Type:       string(stripeErr.Type),
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
			RequestID:  stripeErr.RequestID,
		}
	}
	return fmt.Errorf("stripe request %s: %w", path, err)
}

func params(ctx context.Context, expand ...string) *stripego.Params {
	p := &stripego.Params{Context: ctx}
	for _, field := range expand {
		p.AddExpand(field)
	}
	return p
}
