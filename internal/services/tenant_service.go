package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/prudhvinik1/ledgersync/internal/utils"
)

// TenantService assembles the TenantContext handed to processors.
type TenantService struct {
	accounts      repositories.ProviderAccountRepository
	settings      repositories.SyncSettingsRepository
	tokens        *TokenService
	encryptionKey string
}

func NewTenantService(
	accounts repositories.ProviderAccountRepository,
	settings repositories.SyncSettingsRepository,
	tokens *TokenService,
	encryptionKey string,
) *TenantService {
	return &TenantService{
		accounts:      accounts,
		settings:      settings,
		tokens:        tokens,
		encryptionKey: encryptionKey,
	}
}

// ProviderAccount returns the single configured Stripe account.
func (s *TenantService) ProviderAccount(ctx context.Context) (*models.ProviderAccount, error) {
	account, err := s.accounts.GetSingle(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, syncerr.Configuration("Stripe account not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load provider account: %w", err)
	}
	return account, nil
}

// Settings returns the tenant's sync settings. A tenant without settings
// has nothing enabled.
func (s *TenantService) Settings(ctx context.Context, tenantID uuid.UUID) (*models.SyncSettings, error) {
	settings, err := s.settings.Get(ctx, tenantID)
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.SyncSettings{TenantID: tenantID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync settings: %w", err)
	}
	return settings, nil
}

// Load builds the context for one processing attempt. A missing Stripe or
// QuickBooks connection is a configuration error.
func (s *TenantService) Load(ctx context.Context, tenantID uuid.UUID, settings *models.SyncSettings) (*models.TenantContext, error) {
	account, err := s.accounts.GetByTenantID(ctx, tenantID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, syncerr.Configuration("Stripe account not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load provider account: %w", err)
	}

	apiKey, err := utils.DecryptSecret(account.APIKeyEncrypted, s.encryptionKey)
	if err != nil {
		return nil, syncerr.Configuration("Stripe API key cannot be decrypted")
	}

	token, err := s.tokens.ValidToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if settings == nil {
		if settings, err = s.Settings(ctx, tenantID); err != nil {
			return nil, err
		}
	}

	return &models.TenantContext{
		TenantID: tenantID,
		Account:  account,
		APIKey:   apiKey,
		Ledger:   token,
		Settings: settings,
	}, nil
}
