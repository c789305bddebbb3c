package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/ledgersync/internal/models"
)

const defaultHistoryLimit = 50

type PostgresSyncHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncHistoryRepository(pool *pgxpool.Pool) *PostgresSyncHistoryRepository {
	return &PostgresSyncHistoryRepository{pool: pool}
}

// Create inserts a pending record and fills in ID and CreatedAt.
func (r *PostgresSyncHistoryRepository) Create(ctx context.Context, rec *models.SyncHistoryRecord) error {
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	detail, err := marshalDetail(rec.Detail)
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_history (tenant_id, event_type, provider_event_id, ledger_entity_id, status, message, detail)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id, created_at`

	err = r.pool.QueryRow(ctx, query,
		rec.TenantID,
		rec.EventType,
		rec.ProviderEventID,
		rec.LedgerEntityID,
		rec.Status,
		rec.Message,
		detail,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync history: %w", err)
	}
	return nil
}

// Finalize moves a pending record to its terminal status. A record that is
// no longer pending is left untouched and ErrAlreadyFinalized is returned.
func (r *PostgresSyncHistoryRepository) Finalize(ctx context.Context, rec *models.SyncHistoryRecord) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("cannot finalize sync history with status %q", rec.Status)
	}
	detail, err := marshalDetail(rec.Detail)
	if err != nil {
		return err
	}

	query := `UPDATE sync_history
	          SET status = $1,
	              message = $2,
	              ledger_entity_id = $3,
	              detail = $4,
	              updated_at = NOW()
	          WHERE id = $5 AND status = 'pending'
	          RETURNING updated_at`

	err = r.pool.QueryRow(ctx, query,
		rec.Status,
		rec.Message,
		rec.LedgerEntityID,
		detail,
		rec.ID,
	).Scan(&rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyFinalized
	}
	if err != nil {
		return fmt.Errorf("failed to finalize sync history: %w", err)
	}
	return nil
}

func (r *PostgresSyncHistoryRepository) List(ctx context.Context, filter models.HistoryFilter) ([]*models.SyncHistoryRecord, error) {
	conds := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	args = append(args, limit)

	query := `SELECT id, tenant_id, event_type, provider_event_id, ledger_entity_id, status, message, detail, created_at, updated_at
	          FROM sync_history
	          WHERE ` + strings.Join(conds, " AND ") + fmt.Sprintf(`
	          ORDER BY created_at DESC
	          LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync history: %w", err)
	}
	defer rows.Close()

	var records []*models.SyncHistoryRecord
	for rows.Next() {
		var (
			rec    models.SyncHistoryRecord
			detail []byte
		)
		err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.EventType,
			&rec.ProviderEventID,
			&rec.LedgerEntityID,
			&rec.Status,
			&rec.Message,
			&detail,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync history: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &rec.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sync history detail: %w", err)
			}
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync history: %w", err)
	}
	return records, nil
}

func marshalDetail(detail map[string]any) ([]byte, error) {
	if len(detail) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync history detail: %w", err)
	}
	return data, nil
}
