package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"gavel/internal/config"
	"gavel/pkg/circuitbreaker"
)

// CircuitBreakerAuditStore shields the limiter from a failing durable store.
// While the breaker is open every call fails fast and the limiter falls back
// to memory-only enforcement.
type CircuitBreakerAuditStore struct {
	store AuditStore
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerAuditStore(store AuditStore, cfg config.CircuitBreakerConfig) *CircuitBreakerAuditStore {
	if !cfg.Enabled {
		return &CircuitBreakerAuditStore{
			store: store,
			cb:    nil,
		}
	}

	cbConfig := circuitbreaker.DefaultConfig("postgres-audit")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerAuditStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerAuditStore) Append(ctx context.Context, identity, action string, occurredAt time.Time) error {
	if s.cb == nil {
		return s.store.Append(ctx, identity, action, occurredAt)
	}

	_, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, s.store.Append(ctx, identity, action, occurredAt)
	})

	s.cb.RecordRequest(err == nil)

	if err != nil {
		if s.cb.IsOpen() {
			return fmt.Errorf("circuit breaker is open for postgres-audit: %w", err)
		}
		return err
	}
	return nil
}

func (s *CircuitBreakerAuditStore) CountSince(ctx context.Context, action string, since time.Time) (int, error) {
	if s.cb == nil {
		return s.store.CountSince(ctx, action, since)
	}

	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return s.store.CountSince(ctx, action, since)
	})

	s.cb.RecordRequest(err == nil)

	if err != nil {
		if s.cb.IsOpen() {
			return 0, fmt.Errorf("circuit breaker is open for postgres-audit: %w", err)
		}
		return 0, err
	}

	count, ok := result.(int)
	if !ok {
		return 0, fmt.Errorf("audit store returned invalid result type")
	}
	return count, nil
}

func (s *CircuitBreakerAuditStore) CountSinceForIdentity(ctx context.Context, identity, action string, since time.Time) (int, error) {
	if s.cb == nil {
		return s.store.CountSinceForIdentity(ctx, identity, action, since)
	}

	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return s.store.CountSinceForIdentity(ctx, identity, action, since)
	})

	s.cb.RecordRequest(err == nil)

	if err != nil {
		if s.cb.IsOpen() {
			return 0, fmt.Errorf("circuit breaker is open for postgres-audit: %w", err)
		}
		return 0, err
	}

	count, ok := result.(int)
	if !ok {
		return 0, fmt.Errorf("audit store returned invalid result type")
	}
	return count, nil
}

func (s *CircuitBreakerAuditStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func (s *CircuitBreakerAuditStore) IsOpen() bool {
	if s.cb == nil {
		return false
	}
	return s.cb.IsOpen()
}
