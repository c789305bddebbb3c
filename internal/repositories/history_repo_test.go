package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncHistoryRepository_Lifecycle(t *testing.T) {
	// ARRANGE
	pool := getTestPool(t)
	repo := NewPostgresSyncHistoryRepository(pool)
	ctx := context.Background()
	tenantID := uuid.New()
	defer cleanupTenant(t, pool, tenantID)

	rec := &models.SyncHistoryRecord{
		TenantID:        tenantID,
		EventType:       models.EventInvoicePaid,
		ProviderEventID: "evt_1",
	}
	require.NoError(t, repo.Create(ctx, rec))
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.NotEqual(t, uuid.Nil, rec.ID)

	// ACT
	entityID := "145"
	rec.Status = models.StatusSuccess
	rec.Message = "Invoice and payment synced"
	rec.LedgerEntityID = &entityID
	rec.Detail = map[string]any{"payment_id": "146"}
	err := repo.Finalize(ctx, rec)

	// ASSERT
	require.NoError(t, err)
	assert.NotNil(t, rec.UpdatedAt)

	records, err := repo.List(ctx, models.HistoryFilter{TenantID: tenantID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StatusSuccess, records[0].Status)
	assert.Equal(t, "146", records[0].Detail["payment_id"])
}

func TestSyncHistoryRepository_FinalizeOnlyOnce(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresSyncHistoryRepository(pool)
	ctx := context.Background()
	tenantID := uuid.New()
	defer cleanupTenant(t, pool, tenantID)

	rec := &models.SyncHistoryRecord{TenantID: tenantID, EventType: models.EventChargeFailed, ProviderEventID: "evt_2"}
	require.NoError(t, repo.Create(ctx, rec))
	rec.Status = models.StatusFailed
	rec.Message = "boom"
	require.NoError(t, repo.Finalize(ctx, rec))

	// ACT
	rec.Status = models.StatusSuccess
	err := repo.Finalize(ctx, rec)

	// ASSERT
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	records, err := repo.List(ctx, models.HistoryFilter{TenantID: tenantID, Status: models.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSyncHistoryRepository_FinalizeRejectsPending(t *testing.T) {
	repo := NewPostgresSyncHistoryRepository(nil)

	err := repo.Finalize(context.Background(), &models.SyncHistoryRecord{Status: models.StatusPending})

	assert.Error(t, err)
}
