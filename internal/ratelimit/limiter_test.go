package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gavel/internal/config"
	"gavel/internal/logger"
	apperrors "gavel/pkg/errors"
)

type fakeAuditStore struct {
	mu        sync.Mutex
	events    []AuditEvent
	appendErr error
	countErr  error
}

func (f *fakeAuditStore) Append(ctx context.Context, identity, action string, occurredAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, AuditEvent{Identity: identity, Action: action, OccurredAt: occurredAt})
	return nil
}

func (f *fakeAuditStore) CountSince(ctx context.Context, action string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, ev := range f.events {
		if ev.Action == action && !ev.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeAuditStore) CountSinceForIdentity(ctx context.Context, identity, action string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, ev := range f.events {
		if ev.Identity == identity && ev.Action == action && !ev.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		IdentityPerMinute: 5,
		IdentityPerHour:   20,
		GlobalPerMinute:   100,
		GlobalPerHour:     1000,
		AuditTimeout:      500 * time.Millisecond,
	}
}

func TestLimiter_CheckAndRecord_UnderMinuteCap(t *testing.T) {
	store := &fakeAuditStore{}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message")
		require.NoError(t, err, "request %d should be admitted", i+1)
	}

	err := limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestLimiter_CheckAndRecord_IndependentIdentities(t *testing.T) {
	store := &fakeAuditStore{}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
	}

	err := limiter.CheckAndRecord(ctx, "+5511888888888", "inbound_message")
	assert.NoError(t, err, "a different identity has its own window")
}

func TestLimiter_CheckAndRecord_WindowElapses(t *testing.T) {
	store := &fakeAuditStore{}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	current := time.Now()
	limiter.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
	}
	require.Error(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))

	current = current.Add(61 * time.Second)

	err := limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message")
	assert.NoError(t, err, "the minute window has moved past the earlier requests")
}

func TestLimiter_CheckAndRecord_HourCap(t *testing.T) {
	store := &fakeAuditStore{}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	current := time.Now()
	limiter.now = func() time.Time { return current }

	// Spread 20 requests over separate minutes so only the hour cap binds.
	for i := 0; i < 20; i++ {
		require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
		current = current.Add(2 * time.Minute)
	}

	err := limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestLimiter_CheckAndRecord_ConcurrentNoDoubleAdmission(t *testing.T) {
	cfg := testConfig()
	cfg.IdentityPerMinute = 10
	limiter := NewLimiter(cfg, nil, logger.NopLogger())
	ctx := context.Background()

	const workers = 50
	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), admitted, "admissions must never exceed the cap under concurrency")
}

func TestLimiter_CheckAndRecord_GlobalCap(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalPerMinute = 3
	store := &fakeAuditStore{}
	limiter := NewLimiter(cfg, store, logger.NopLogger())
	ctx := context.Background()

	// Three distinct identities fill the global window.
	require.NoError(t, limiter.CheckAndRecord(ctx, "+5511000000001", "inbound_message"))
	require.NoError(t, limiter.CheckAndRecord(ctx, "+5511000000002", "inbound_message"))
	require.NoError(t, limiter.CheckAndRecord(ctx, "+5511000000003", "inbound_message"))

	err := limiter.CheckAndRecord(ctx, "+5511000000004", "inbound_message")
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestLimiter_CheckAndRecord_StoreFailureDegradesToMemory(t *testing.T) {
	store := &fakeAuditStore{
		appendErr: errors.New("connection refused"),
		countErr:  errors.New("connection refused"),
	}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	err := limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message")
	assert.NoError(t, err, "a degraded store must not block admission")

	// Per-identity enforcement still works in memory.
	for i := 0; i < 4; i++ {
		require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
	}
	err = limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message")
	assert.True(t, apperrors.IsRateLimited(err))
}

func TestLimiter_CheckAndRecord_AppendsAuditRecord(t *testing.T) {
	store := &fakeAuditStore{}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.events, 1)
	assert.Equal(t, "+5511999999999", store.events[0].Identity)
	assert.Equal(t, "inbound_message", store.events[0].Action)
}

func TestLimiter_Status_ReadOnly(t *testing.T) {
	store := &fakeAuditStore{}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
	}

	status := limiter.Status(ctx, "+5511999999999", "inbound_message")
	assert.Equal(t, 3, status.RequestsLastMinute)
	assert.Equal(t, 3, status.RequestsLastHour)
	assert.Equal(t, 2, status.RemainingMinute)
	assert.Equal(t, 17, status.RemainingHour)

	// Reading status consumes no quota.
	again := limiter.Status(ctx, "+5511999999999", "inbound_message")
	assert.Equal(t, status.RequestsLastMinute, again.RequestsLastMinute)
}

func TestLimiter_Status_SharedStoreCoversOtherInstances(t *testing.T) {
	store := &fakeAuditStore{}
	first := NewLimiter(testConfig(), store, logger.NopLogger())
	second := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, first.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
	}

	// The second instance has no in-memory window for this identity, but
	// the shared audit log still reports the usage.
	status := second.Status(ctx, "+5511999999999", "inbound_message")
	assert.Equal(t, 3, status.RequestsLastMinute)
	assert.Equal(t, 3, status.RequestsLastHour)
	assert.Equal(t, 2, status.RemainingMinute)
}

func TestLimiter_Status_StoreFailureReportsMemoryOnly(t *testing.T) {
	store := &fakeAuditStore{}
	limiter := NewLimiter(testConfig(), store, logger.NopLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.CheckAndRecord(ctx, "+5511999999999", "inbound_message"))
	}

	store.mu.Lock()
	store.countErr = errors.New("connection refused")
	store.mu.Unlock()

	status := limiter.Status(ctx, "+5511999999999", "inbound_message")
	assert.Equal(t, 2, status.RequestsLastMinute, "the in-process window still answers")
}
