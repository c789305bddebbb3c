package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingRepository_CreateAndFind(t *testing.T) {
	// ARRANGE
	pool := getTestPool(t)
	repo := NewPostgresMappingRepository(pool)
	ctx := context.Background()
	tenantID := uuid.New()
	defer cleanupTenant(t, pool, tenantID)

	secondary := "77"
	mapping := &models.MappingRecord{
		TenantID:          tenantID,
		Kind:              models.MappingInvoice,
		ProviderID:        "in_123",
		TargetID:          "145",
		SecondaryTargetID: &secondary,
	}

	// ACT
	err := repo.Create(ctx, mapping)

	// ASSERT
	require.NoError(t, err)
	assert.NotZero(t, mapping.ID)
	assert.False(t, mapping.CreatedAt.IsZero())

	found, err := repo.Find(ctx, tenantID, models.MappingInvoice, "in_123")
	require.NoError(t, err)
	assert.Equal(t, "145", found.TargetID)
	require.NotNil(t, found.SecondaryTargetID)
	assert.Equal(t, "77", *found.SecondaryTargetID)
}

func TestMappingRepository_DuplicateIsRejected(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMappingRepository(pool)
	ctx := context.Background()
	tenantID := uuid.New()
	defer cleanupTenant(t, pool, tenantID)

	first := &models.MappingRecord{TenantID: tenantID, Kind: models.MappingCharge, ProviderID: "ch_1", TargetID: "10"}
	require.NoError(t, repo.Create(ctx, first))

	// ACT: same tenant, kind and provider id
	second := &models.MappingRecord{TenantID: tenantID, Kind: models.MappingCharge, ProviderID: "ch_1", TargetID: "11"}
	err := repo.Create(ctx, second)

	// ASSERT: first writer wins
	assert.ErrorIs(t, err, ErrMappingExists)
	found, err := repo.Find(ctx, tenantID, models.MappingCharge, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, "10", found.TargetID)
}

func TestMappingRepository_SameProviderIDDifferentKind(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMappingRepository(pool)
	ctx := context.Background()
	tenantID := uuid.New()
	defer cleanupTenant(t, pool, tenantID)

	require.NoError(t, repo.Create(ctx, &models.MappingRecord{TenantID: tenantID, Kind: models.MappingCharge, ProviderID: "ch_2", TargetID: "1"}))
	err := repo.Create(ctx, &models.MappingRecord{TenantID: tenantID, Kind: models.MappingChargeInvoice, ProviderID: "ch_2", TargetID: "2"})

	assert.NoError(t, err)
}

func TestMappingRepository_FindMissing(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresMappingRepository(pool)

	_, err := repo.Find(context.Background(), uuid.New(), models.MappingItem, "prod_missing")

	assert.ErrorIs(t, err, ErrNotFound)
}
