package services

import (
	"net/http"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	stripego "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

type ClientFactoryConfig struct {
	StripeBaseURL   string
	QBOBaseURL      string
	QBOMinorVersion string
	Timeout         time.Duration
}

// ClientFactory builds per-tenant Stripe and QBO clients sharing one
// http.Client and one stripe-go backend.
type ClientFactory struct {
	cfg           ClientFactoryConfig
	httpClient    *http.Client
	stripeBackend stripego.Backend
	tokens        *TokenService
}

func NewClientFactory(cfg ClientFactoryConfig, tokens *TokenService, log *zap.Logger) *ClientFactory {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	return &ClientFactory{
		cfg:           cfg,
		httpClient:    httpClient,
		stripeBackend: stripe.NewBackend(cfg.StripeBaseURL, httpClient, 0, log),
		tokens:        tokens,
	}
}

func (f *ClientFactory) Stripe(tc *models.TenantContext) stripe.API {
	return stripe.NewClient(stripe.ClientOptions{
		APIKey:  tc.APIKey,
		Backend: f.stripeBackend,
	})
}

func (f *ClientFactory) Ledger(tc *models.TenantContext) quickbooks.API {
	return quickbooks.NewClient(quickbooks.ClientOptions{
		BaseURL:       f.cfg.QBOBaseURL,
		RealmID:       tc.RealmID(),
		MinorVersion:  f.cfg.QBOMinorVersion,
		TokenProvider: f.tokens.Provider(tc.TenantID),
		HTTPClient:    f.httpClient,
	})
}
