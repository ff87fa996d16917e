package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/internal/quarantine"
	"gavel/pkg/migrations"
)

func TestQuarantineStore_ArchiveAndListRecent(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	require.NoError(t, migrations.EnsureQuarantineCollection(ctx, infra.MongoDB, "quarantine"))

	store := quarantine.NewStore(infra.MongoDB, "quarantine", createTestLogger())

	require.NoError(t, store.Archive(ctx, quarantine.QuarantinedMessage{
		Identity: "+5511999999999",
		Reason:   "validation_failed",
		Errors:   []string{"validation_failed"},
		Payload:  map[string]interface{}{"text": "rejected content"},
	}))
	require.NoError(t, store.Archive(ctx, quarantine.QuarantinedMessage{
		Identity: "+5511888888888",
		Reason:   "rate_limit_exceeded",
	}))

	all, err := store.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.ListRecent(ctx, "validation_failed", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "+5511999999999", filtered[0].Identity)
	assert.NotEmpty(t, filtered[0].ID)
	assert.WithinDuration(t, time.Now().UTC(), filtered[0].RejectedAt, time.Minute)
}

func TestQuarantineStore_ListRecent_SortedNewestFirst(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, false)

	ctx := context.Background()
	store := quarantine.NewStore(infra.MongoDB, "quarantine", createTestLogger())

	older := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Archive(ctx, quarantine.QuarantinedMessage{
		ID: "older", Reason: "validation_failed", RejectedAt: older,
	}))
	require.NoError(t, store.Archive(ctx, quarantine.QuarantinedMessage{
		ID: "newer", Reason: "validation_failed",
	}))

	messages, err := store.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "newer", messages[0].ID)
	assert.Equal(t, "older", messages[1].ID)
}
