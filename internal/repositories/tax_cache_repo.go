package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/ledgersync/internal/models"
)

type PostgresTaxRateRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTaxRateRepository(pool *pgxpool.Pool) *PostgresTaxRateRepository {
	return &PostgresTaxRateRepository{pool: pool}
}

// ReplaceAll swaps the tenant's cached rates in one transaction, so readers
// see either the old set or the new one.
func (r *PostgresTaxRateRepository) ReplaceAll(ctx context.Context, tenantID uuid.UUID, entries []models.TaxRateCacheEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tax rate refresh: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tax_rate_cache WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("failed to clear tax rate cache: %w", err)
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{tenantID, e.RateID, e.Name, e.RateValue, e.TaxCodeRef, e.TaxCodeName, string(e.RateType)})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"tax_rate_cache"},
		[]string{"tenant_id", "rate_id", "name", "rate_value", "tax_code_ref", "tax_code_name", "rate_type"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy tax rates: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tax rate refresh: %w", err)
	}
	return nil
}

func (r *PostgresTaxRateRepository) List(ctx context.Context, tenantID uuid.UUID) ([]models.TaxRateCacheEntry, error) {
	query := `SELECT tenant_id, rate_id, name, rate_value::float8, tax_code_ref, tax_code_name, rate_type
	          FROM tax_rate_cache
	          WHERE tenant_id = $1
	          ORDER BY tax_code_ref ASC, rate_id ASC`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax rates: %w", err)
	}
	defer rows.Close()

	var entries []models.TaxRateCacheEntry
	for rows.Next() {
		var e models.TaxRateCacheEntry
		if err := rows.Scan(&e.TenantID, &e.RateID, &e.Name, &e.RateValue, &e.TaxCodeRef, &e.TaxCodeName, &e.RateType); err != nil {
			return nil, fmt.Errorf("failed to scan tax rate: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax rates: %w", err)
	}
	return entries, nil
}

type PostgresDepositAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDepositAccountRepository(pool *pgxpool.Pool) *PostgresDepositAccountRepository {
	return &PostgresDepositAccountRepository{pool: pool}
}

func (r *PostgresDepositAccountRepository) ReplaceAll(ctx context.Context, tenantID uuid.UUID, accounts []models.DepositAccount) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin deposit account refresh: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM deposit_account_cache WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("failed to clear deposit account cache: %w", err)
	}

	rows := make([][]any, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []any{tenantID, a.AccountID, a.Name, a.AccountType, a.FullyQualifiedName})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"deposit_account_cache"},
		[]string{"tenant_id", "account_id", "name", "account_type", "fully_qualified_name"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy deposit accounts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit deposit account refresh: %w", err)
	}
	return nil
}

func (r *PostgresDepositAccountRepository) List(ctx context.Context, tenantID uuid.UUID) ([]models.DepositAccount, error) {
	query := `SELECT tenant_id, account_id, name, account_type, fully_qualified_name
	          FROM deposit_account_cache
	          WHERE tenant_id = $1
	          ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposit accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.DepositAccount
	for rows.Next() {
		var a models.DepositAccount
		if err := rows.Scan(&a.TenantID, &a.AccountID, &a.Name, &a.AccountType, &a.FullyQualifiedName); err != nil {
			return nil, fmt.Errorf("failed to scan deposit account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit accounts: %w", err)
	}
	return accounts, nil
}
