package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"go.uber.org/zap"
)

type tenantLoader interface {
	Load(ctx context.Context, tenantID uuid.UUID, settings *models.SyncSettings) (*models.TenantContext, error)
}

type ledgerSource interface {
	Ledger(tc *models.TenantContext) quickbooks.API
}

// Maintenance runs the cache refreshes and token sweep triggered by the
// operator API, the CLI and the scheduler.
type Maintenance struct {
	tenants tenantLoader
	clients ledgerSource
	tax     *TaxService
	tokens  *TokenService
	log     *zap.Logger
}

func NewMaintenance(tenants *TenantService, clients *ClientFactory, tax *TaxService, tokens *TokenService, log *zap.Logger) *Maintenance {
	return &Maintenance{
		tenants: tenants,
		clients: clients,
		tax:     tax,
		tokens:  tokens,
		log:     log.Named("maintenance"),
	}
}

func (m *Maintenance) RefreshTaxRates(ctx context.Context, tenantID uuid.UUID) (int, error) {
	tc, err := m.tenants.Load(ctx, tenantID, nil)
	if err != nil {
		return 0, err
	}
	return m.tax.RefreshTaxRates(ctx, m.clients.Ledger(tc), tc)
}

func (m *Maintenance) RefreshDepositAccounts(ctx context.Context, tenantID uuid.UUID) (int, error) {
	tc, err := m.tenants.Load(ctx, tenantID, nil)
	if err != nil {
		return 0, err
	}
	return m.tax.RefreshDepositAccounts(ctx, m.clients.Ledger(tc), tc)
}

func (m *Maintenance) SweepTokens(ctx context.Context) (SweepResult, error) {
	return m.tokens.Sweep(ctx)
}
