package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/internal/ratelimit"
	apperrors "gavel/pkg/errors"
)

func TestLimiter_GlobalCapFromDurableStore(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := ratelimit.NewPostgresAuditStore(infra.PostgresDB)

	cfg := createTestRateLimitConfig()
	cfg.IdentityPerMinute = 100
	cfg.IdentityPerHour = 1000
	cfg.GlobalPerMinute = 3

	limiter := ratelimit.NewLimiter(cfg, store, createTestLogger())

	identities := []string{"+5511111111111", "+5522222222222", "+5533333333333"}
	for _, identity := range identities {
		require.NoError(t, limiter.CheckAndRecord(ctx, identity, "inbound_message"))
	}

	err := limiter.CheckAndRecord(ctx, "+5544444444444", "inbound_message")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestLimiter_GlobalCapSharedAcrossInstances(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := ratelimit.NewPostgresAuditStore(infra.PostgresDB)

	cfg := createTestRateLimitConfig()
	cfg.IdentityPerMinute = 100
	cfg.GlobalPerMinute = 2

	first := ratelimit.NewLimiter(cfg, store, createTestLogger())
	second := ratelimit.NewLimiter(cfg, store, createTestLogger())

	require.NoError(t, first.CheckAndRecord(ctx, "+5511111111111", "inbound_message"))
	require.NoError(t, second.CheckAndRecord(ctx, "+5522222222222", "inbound_message"))

	// The second instance never admitted the first identity, but the shared
	// audit log still pushes it over the global cap.
	err := second.CheckAndRecord(ctx, "+5533333333333", "inbound_message")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestLimiter_AuditEventsPersisted(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := ratelimit.NewPostgresAuditStore(infra.PostgresDB)

	limiter := ratelimit.NewLimiter(createTestRateLimitConfig(), store, createTestLogger())

	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
	}

	var count int
	err := infra.PostgresDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limit_events WHERE identity = $1`, "+5511999999999").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestLimiter_CircuitBreakerStoreStillEnforces(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false, false)

	ctx := context.Background()
	store := ratelimit.NewCircuitBreakerAuditStore(
		ratelimit.NewPostgresAuditStore(infra.PostgresDB),
		createTestCircuitBreakerConfig(),
	)

	cfg := createTestRateLimitConfig()
	cfg.GlobalPerMinute = 2

	limiter := ratelimit.NewLimiter(cfg, store, createTestLogger())

	require.NoError(t, limiter.CheckAndRecord(ctx, "+5511111111111", "inbound_message"))
	require.NoError(t, limiter.CheckAndRecord(ctx, "+5522222222222", "inbound_message"))

	err := limiter.CheckAndRecord(ctx, "+5533333333333", "inbound_message")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
}
