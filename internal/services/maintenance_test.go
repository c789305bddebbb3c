package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubTenants struct {
	err error
}

func (s stubTenants) Load(ctx context.Context, tenantID uuid.UUID, settings *models.SyncSettings) (*models.TenantContext, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.TenantContext{TenantID: tenantID}, nil
}

type stubLedgerSource struct {
	ledger *fakeLedger
}

func (s stubLedgerSource) Ledger(tc *models.TenantContext) quickbooks.API { return s.ledger }

func TestMaintenance_RefreshDepositAccounts(t *testing.T) {
	// ARRANGE
	ledger := &fakeLedger{onQuery: func(q string) (*quickbooks.QueryResponse, error) {
		return &quickbooks.QueryResponse{Account: []quickbooks.Account{{ID: "35", Name: "Checking", AccountType: "Bank"}}}, nil
	}}
	deposits := &memoryDepositRepo{}
	m := &Maintenance{
		tenants: stubTenants{},
		clients: stubLedgerSource{ledger: ledger},
		tax:     NewTaxService(&memoryTaxRateRepo{}, deposits, nil, zap.NewNop()),
		log:     zap.NewNop(),
	}

	// ACT
	n, err := m.RefreshDepositAccounts(context.Background(), uuid.New())

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, ledger.callsOf("query"), 1)
}

func TestMaintenance_RefreshTaxRatesWithoutLedger(t *testing.T) {
	// ARRANGE
	ledger := &fakeLedger{}
	m := &Maintenance{
		tenants: stubTenants{err: syncerr.Configuration("QuickBooks account not connected")},
		clients: stubLedgerSource{ledger: ledger},
		tax:     NewTaxService(&memoryTaxRateRepo{}, &memoryDepositRepo{}, nil, zap.NewNop()),
		log:     zap.NewNop(),
	}

	// ACT
	_, err := m.RefreshTaxRates(context.Background(), uuid.New())

	// ASSERT
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))
	assert.Empty(t, ledger.callsOf("query"))
}
