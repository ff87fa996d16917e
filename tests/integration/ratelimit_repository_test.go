package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/internal/ratelimit"
)

func TestPostgresAuditStore_AppendAndCount(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := ratelimit.NewPostgresAuditStore(infra.PostgresDB)

	now := time.Now().UTC()
	require.NoError(t, store.Append(ctx, "+5511999999999", "inbound_message", now))
	require.NoError(t, store.Append(ctx, "+5511888888888", "inbound_message", now))
	require.NoError(t, store.Append(ctx, "+5511999999999", "inbound_message", now.Add(-2*time.Hour)))

	count, err := store.CountSince(ctx, "inbound_message", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.CountSince(ctx, "inbound_message", now.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPostgresAuditStore_CountSinceForIdentity(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := ratelimit.NewPostgresAuditStore(infra.PostgresDB)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, "+5511999999999", "inbound_message", now))
	}
	require.NoError(t, store.Append(ctx, "+5511888888888", "inbound_message", now))

	count, err := store.CountSinceForIdentity(ctx, "+5511999999999", "inbound_message", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.CountSinceForIdentity(ctx, "+5511777777777", "inbound_message", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPostgresAuditStore_CountSince_ActionScoped(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := ratelimit.NewPostgresAuditStore(infra.PostgresDB)

	now := time.Now().UTC()
	require.NoError(t, store.Append(ctx, "+5511999999999", "inbound_message", now))
	require.NoError(t, store.Append(ctx, "+5511999999999", "api_validate", now))

	count, err := store.CountSince(ctx, "api_validate", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
