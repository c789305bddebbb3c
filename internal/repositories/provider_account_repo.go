package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/ledgersync/internal/models"
)

type PostgresProviderAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresProviderAccountRepository(pool *pgxpool.Pool) *PostgresProviderAccountRepository {
	return &PostgresProviderAccountRepository{pool: pool}
}

const providerAccountColumns = `id, tenant_id, stripe_user_id, api_key_encrypted, is_live, created_at, updated_at`

func scanProviderAccount(row pgx.Row) (*models.ProviderAccount, error) {
	var a models.ProviderAccount
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.StripeUserID,
		&a.APIKeyEncrypted,
		&a.IsLive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetSingle returns the oldest configured account. The engine serves one
// Stripe account per deployment.
func (r *PostgresProviderAccountRepository) GetSingle(ctx context.Context) (*models.ProviderAccount, error) {
	query := `SELECT ` + providerAccountColumns + `
	          FROM provider_accounts
	          ORDER BY created_at ASC
	          LIMIT 1`

	a, err := scanProviderAccount(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider account: %w", err)
	}
	return a, nil
}

func (r *PostgresProviderAccountRepository) GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*models.ProviderAccount, error) {
	query := `SELECT ` + providerAccountColumns + ` FROM provider_accounts WHERE tenant_id = $1`

	a, err := scanProviderAccount(r.pool.QueryRow(ctx, query, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider account by tenant: %w", err)
	}
	return a, nil
}

func (r *PostgresProviderAccountRepository) Upsert(ctx context.Context, a *models.ProviderAccount) error {
	query := `INSERT INTO provider_accounts (tenant_id, stripe_user_id, api_key_encrypted, is_live)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (tenant_id) DO UPDATE
	          SET stripe_user_id = EXCLUDED.stripe_user_id,
	              api_key_encrypted = EXCLUDED.api_key_encrypted,
	              is_live = EXCLUDED.is_live,
	              updated_at = NOW()
	          RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, a.TenantID, a.StripeUserID, a.APIKeyEncrypted, a.IsLive).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert provider account: %w", err)
	}
	return nil
}
