package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
)

type ProviderAccountRepository interface {
	// GetSingle returns the one configured Stripe account.
	GetSingle(ctx context.Context) (*models.ProviderAccount, error)
	GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*models.ProviderAccount, error)
	Upsert(ctx context.Context, account *models.ProviderAccount) error
}

type SyncSettingsRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.SyncSettings, error)
	Upsert(ctx context.Context, settings *models.SyncSettings) error
}

type MappingRepository interface {
	Find(ctx context.Context, tenantID uuid.UUID, kind models.MappingKind, providerID string) (*models.MappingRecord, error)
	Create(ctx context.Context, mapping *models.MappingRecord) error
}

type SyncHistoryRepository interface {
	Create(ctx context.Context, record *models.SyncHistoryRecord) error
	Finalize(ctx context.Context, record *models.SyncHistoryRecord) error
	List(ctx context.Context, filter models.HistoryFilter) ([]*models.SyncHistoryRecord, error)
}

type TokenRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.OAuthToken, error)
	// ListExpiring returns tokens whose refresh token is still valid at now
	// and whose access token expires before the given time.
	ListExpiring(ctx context.Context, now, before time.Time) ([]*models.OAuthToken, error)
	// CompareAndSwap replaces the token pair only if the stored refresh
	// token still equals previousRefreshToken.
	CompareAndSwap(ctx context.Context, previousRefreshToken string, token *models.OAuthToken) error
	Upsert(ctx context.Context, token *models.OAuthToken) error
}

type TaxRateRepository interface {
	ReplaceAll(ctx context.Context, tenantID uuid.UUID, entries []models.TaxRateCacheEntry) error
	List(ctx context.Context, tenantID uuid.UUID) ([]models.TaxRateCacheEntry, error)
}

type DepositAccountRepository interface {
	ReplaceAll(ctx context.Context, tenantID uuid.UUID, accounts []models.DepositAccount) error
	List(ctx context.Context, tenantID uuid.UUID) ([]models.DepositAccount, error)
}

type LocaleCache interface {
	GetLocale(ctx context.Context, realmID string) (models.TaxLocale, error)
	SetLocale(ctx context.Context, realmID string, locale models.TaxLocale) error
}

type EventClaimRepository interface {
	Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, eventID string) error
}
