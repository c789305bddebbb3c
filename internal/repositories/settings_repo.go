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

type PostgresSyncSettingsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncSettingsRepository(pool *pgxpool.Pool) *PostgresSyncSettingsRepository {
	return &PostgresSyncSettingsRepository{pool: pool}
}

func (r *PostgresSyncSettingsRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.SyncSettings, error) {
	query := `SELECT tenant_id, enabled_events, tax_exempt_id, deposit_account_id, updated_at
	          FROM sync_settings
	          WHERE tenant_id = $1`

	var (
		s       models.SyncSettings
		enabled int32
	)
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&s.TenantID,
		&enabled,
		&s.TaxExemptID,
		&s.DepositAccountID,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync settings: %w", err)
	}
	s.Enabled = models.EventMask(enabled)
	return &s, nil
}

func (r *PostgresSyncSettingsRepository) Upsert(ctx context.Context, s *models.SyncSettings) error {
	query := `INSERT INTO sync_settings (tenant_id, enabled_events, tax_exempt_id, deposit_account_id)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (tenant_id) DO UPDATE
	          SET enabled_events = EXCLUDED.enabled_events,
	              tax_exempt_id = EXCLUDED.tax_exempt_id,
	              deposit_account_id = EXCLUDED.deposit_account_id,
	              updated_at = NOW()
	          RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query, s.TenantID, int32(s.Enabled), s.TaxExemptID, s.DepositAccountID).
		Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert sync settings: %w", err)
	}
	return nil
}
