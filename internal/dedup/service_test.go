package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/internal/config"
	"gavel/internal/constants"
	"gavel/internal/logger"
)

func newTestService(t *testing.T, onError string) (*Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc := NewService(NewRepository(client), config.DedupConfig{
		TTLSeconds:   60,
		OnRedisError: onError,
	}, logger.NopLogger())

	return svc, mr
}

func TestService_IsFirstDelivery_Unique(t *testing.T) {
	svc, _ := newTestService(t, constants.FallbackAllow)

	first, err := svc.IsFirstDelivery(context.Background(), "wamid.abc123")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestService_IsFirstDelivery_Duplicate(t *testing.T) {
	svc, _ := newTestService(t, constants.FallbackAllow)
	ctx := context.Background()

	first, err := svc.IsFirstDelivery(ctx, "wamid.abc123")
	require.NoError(t, err)
	require.True(t, first)

	second, err := svc.IsFirstDelivery(ctx, "wamid.abc123")
	require.NoError(t, err)
	assert.False(t, second)
}

func TestService_IsFirstDelivery_TTLExpiry(t *testing.T) {
	svc, mr := newTestService(t, constants.FallbackAllow)
	ctx := context.Background()

	first, err := svc.IsFirstDelivery(ctx, "wamid.abc123")
	require.NoError(t, err)
	require.True(t, first)

	mr.FastForward(61 * time.Second)

	again, err := svc.IsFirstDelivery(ctx, "wamid.abc123")
	require.NoError(t, err)
	assert.True(t, again, "the claim expires with the TTL")
}

func TestService_IsFirstDelivery_RedisDownAllows(t *testing.T) {
	svc, mr := newTestService(t, constants.FallbackAllow)
	mr.Close()

	first, err := svc.IsFirstDelivery(context.Background(), "wamid.abc123")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestService_IsFirstDelivery_RedisDownDenies(t *testing.T) {
	svc, mr := newTestService(t, constants.FallbackDeny)
	mr.Close()

	first, err := svc.IsFirstDelivery(context.Background(), "wamid.abc123")
	require.Error(t, err)
	assert.False(t, first)
}

func TestService_IsFirstDelivery_NoRepository(t *testing.T) {
	svc := NewService(nil, config.DedupConfig{}, logger.NopLogger())

	first, err := svc.IsFirstDelivery(context.Background(), "wamid.abc123")
	require.NoError(t, err)
	assert.True(t, first, "dedup is a no-op when Redis is not configured")
}
