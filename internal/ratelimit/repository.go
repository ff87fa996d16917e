package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gavel/pkg/metrics"
)

// AuditStore is the durable side of the limiter: an append-only event log
// queryable by count-in-window.
type AuditStore interface {
	Append(ctx context.Context, identity, action string, occurredAt time.Time) error
	CountSince(ctx context.Context, action string, since time.Time) (int, error)
	CountSinceForIdentity(ctx context.Context, identity, action string, since time.Time) (int, error)
}

type PostgresAuditStore struct {
	db *sql.DB
}

func NewPostgresAuditStore(db *sql.DB) AuditStore {
	return &PostgresAuditStore{db: db}
}

func (s *PostgresAuditStore) Append(ctx context.Context, identity, action string, occurredAt time.Time) error {
	start := time.Now()

	query := `
		INSERT INTO rate_limit_events (identity, action, occurred_at)
		VALUES ($1, $2, $3)`

	_, err := s.db.ExecContext(ctx, query, identity, action, occurredAt)
	if err != nil {
		metrics.ObserveAuditStoreDuration(time.Since(start), "append", "error")
		return fmt.Errorf("failed to append rate limit event: %w", err)
	}

	metrics.ObserveAuditStoreDuration(time.Since(start), "append", "success")
	return nil
}

func (s *PostgresAuditStore) CountSince(ctx context.Context, action string, since time.Time) (int, error) {
	start := time.Now()

	query := `
		SELECT COUNT(*)
		FROM rate_limit_events
		WHERE action = $1 AND occurred_at >= $2`

	var count int
	if err := s.db.QueryRowContext(ctx, query, action, since).Scan(&count); err != nil {
		metrics.ObserveAuditStoreDuration(time.Since(start), "count", "error")
		return 0, fmt.Errorf("failed to count rate limit events: %w", err)
	}

	metrics.ObserveAuditStoreDuration(time.Since(start), "count", "success")
	return count, nil
}

func (s *PostgresAuditStore) CountSinceForIdentity(ctx context.Context, identity, action string, since time.Time) (int, error) {
	start := time.Now()

	query := `
		SELECT COUNT(*)
		FROM rate_limit_events
		WHERE identity = $1 AND action = $2 AND occurred_at >= $3`

	var count int
	if err := s.db.QueryRowContext(ctx, query, identity, action, since).Scan(&count); err != nil {
		metrics.ObserveAuditStoreDuration(time.Since(start), "count_identity", "error")
		return 0, fmt.Errorf("failed to count rate limit events for identity: %w", err)
	}

	metrics.ObserveAuditStoreDuration(time.Since(start), "count_identity", "success")
	return count, nil
}
