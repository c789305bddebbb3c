package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/ledgersync/internal/models"
)

type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTokenRepository(pool *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

const tokenColumns = `tenant_id, realm_id, access_token, refresh_token, access_token_expires_at, refresh_token_expires_at, created_at, updated_at`

func scanToken(row pgx.Row) (*models.OAuthToken, error) {
	var t models.OAuthToken
	err := row.Scan(
		&t.TenantID,
		&t.RealmID,
		&t.AccessToken,
		&t.RefreshToken,
		&t.AccessTokenExpiresAt,
		&t.RefreshTokenExpiresAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTokenRepository) Get(ctx context.Context, tenantID uuid.UUID) (*models.OAuthToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM ledger_accounts WHERE tenant_id = $1`

	t, err := scanToken(r.pool.QueryRow(ctx, query, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger token: %w", err)
	}
	return t, nil
}

func (r *PostgresTokenRepository) ListExpiring(ctx context.Context, now, before time.Time) ([]*models.OAuthToken, error) {
	query := `SELECT ` + tokenColumns + `
	          FROM ledger_accounts
	          WHERE access_token_expires_at < $1 AND refresh_token_expires_at > $2
	          ORDER BY access_token_expires_at ASC`

	rows, err := r.pool.Query(ctx, query, before, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.OAuthToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return tokens, nil
}

// CompareAndSwap stores the rotated pair only when the row still holds
// previousRefreshToken. A concurrent rotation makes it return ErrTokenConflict.
func (r *PostgresTokenRepository) CompareAndSwap(ctx context.Context, previousRefreshToken string, t *models.OAuthToken) error {
	query := `UPDATE ledger_accounts
	          SET access_token = $1,
	              refresh_token = $2,
	              access_token_expires_at = $3,
	              refresh_token_expires_at = $4,
	              updated_at = NOW()
	          WHERE tenant_id = $5 AND refresh_token = $6
	          RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		t.AccessToken,
		t.RefreshToken,
		t.AccessTokenExpiresAt,
		t.RefreshTokenExpiresAt,
		t.TenantID,
		previousRefreshToken,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenConflict
	}
	if err != nil {
		return fmt.Errorf("failed to swap ledger token: %w", err)
	}
	return nil
}

// Upsert stores a freshly authorized connection, replacing any previous one.
func (r *PostgresTokenRepository) Upsert(ctx context.Context, t *models.OAuthToken) error {
	query := `INSERT INTO ledger_accounts (tenant_id, realm_id, access_token, refresh_token, access_token_expires_at, refresh_token_expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (tenant_id) DO UPDATE
	          SET realm_id = EXCLUDED.realm_id,
	              access_token = EXCLUDED.access_token,
	              refresh_token = EXCLUDED.refresh_token,
	              access_token_expires_at = EXCLUDED.access_token_expires_at,
	              refresh_token_expires_at = EXCLUDED.refresh_token_expires_at,
	              updated_at = NOW()
	          RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		t.TenantID,
		t.RealmID,
		t.AccessToken,
		t.RefreshToken,
		t.AccessTokenExpiresAt,
		t.RefreshTokenExpiresAt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert ledger token: %w", err)
	}
	return nil
}
