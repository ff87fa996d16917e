package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/internal/dedup"
)

func TestDedupRepository_SetNX(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	repo := dedup.NewRepository(infra.RedisClient)

	key := "test:dedup:wamid.1"
	value := time.Now().Unix()
	ttl := 5 * time.Second

	unique, err := repo.SetNX(ctx, key, value, ttl)
	require.NoError(t, err)
	assert.True(t, unique)

	unique, err = repo.SetNX(ctx, key, value+1, ttl)
	require.NoError(t, err)
	assert.False(t, unique)
}

func TestDedupService_FirstAndRepeatedDelivery(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	svc := dedup.NewService(dedup.NewRepository(infra.RedisClient), createTestDedupConfig(), createTestLogger())

	first, err := svc.IsFirstDelivery(ctx, "wamid.integration.1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := svc.IsFirstDelivery(ctx, "wamid.integration.1")
	require.NoError(t, err)
	assert.False(t, second)

	other, err := svc.IsFirstDelivery(ctx, "wamid.integration.2")
	require.NoError(t, err)
	assert.True(t, other)
}
