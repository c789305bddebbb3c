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

type PostgresMappingRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMappingRepository(pool *pgxpool.Pool) *PostgresMappingRepository {
	return &PostgresMappingRepository{pool: pool}
}

func (r *PostgresMappingRepository) Find(ctx context.Context, tenantID uuid.UUID, kind models.MappingKind, providerID string) (*models.MappingRecord, error) {
	query := `SELECT id, tenant_id, kind, provider_id, target_id, secondary_target_id, created_at
	          FROM sync_mappings
	          WHERE tenant_id = $1 AND kind = $2 AND provider_id = $3`

	var m models.MappingRecord
	err := r.pool.QueryRow(ctx, query, tenantID, kind, providerID).Scan(
		&m.ID,
		&m.TenantID,
		&m.Kind,
		&m.ProviderID,
		&m.TargetID,
		&m.SecondaryTargetID,
		&m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find mapping: %w", err)
	}
	return &m, nil
}

// Create inserts the mapping. The unique constraint on
// (tenant_id, kind, provider_id) rejects a second insert with ErrMappingExists.
func (r *PostgresMappingRepository) Create(ctx context.Context, m *models.MappingRecord) error {
	query := `INSERT INTO sync_mappings (tenant_id, kind, provider_id, target_id, secondary_target_id)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, m.TenantID, m.Kind, m.ProviderID, m.TargetID, m.SecondaryTargetID).
		Scan(&m.ID, &m.CreatedAt)
	if isUniqueViolation(err) {
		return ErrMappingExists
	}
	if err != nil {
		return fmt.Errorf("failed to create mapping: %w", err)
	}
	return nil
}
