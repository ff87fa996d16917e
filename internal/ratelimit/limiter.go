package ratelimit

import (
	"context"
	"sync"
	"time"

	"gavel/internal/config"
	"gavel/internal/constants"
	"gavel/internal/logger"
	apperrors "gavel/pkg/errors"
	"gavel/pkg/metrics"
	"gavel/pkg/retry"
)

// entry holds the recent admission timestamps for one (identity, action)
// key. Its mutex is held across the whole check-and-append so two concurrent
// requests can never both observe an under-cap count and both pass.
type entry struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Limiter enforces per-identity caps from an in-process sliding window and
// global caps from the durable audit log, which is shared across instances.
// Per-identity checks run first so an abusive sender is rejected without
// touching the store.
type Limiter struct {
	cfg    config.RateLimitConfig
	store  AuditStore
	logger logger.Logger

	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

func NewLimiter(cfg config.RateLimitConfig, store AuditStore, log logger.Logger) *Limiter {
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = constants.DefaultAuditTimeout
	}
	return &Limiter{
		cfg:     cfg,
		store:   store,
		logger:  log,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// CheckAndRecord admits or rejects one request for the given identity and
// action. On admission the timestamp is recorded in memory and appended to
// the audit log best-effort.
func (l *Limiter) CheckAndRecord(ctx context.Context, identity, action string) error {
	e := l.entry(identity + "|" + action)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	e.timestamps = pruneOlderThan(e.timestamps, now.Add(-constants.RateWindowHour))

	minuteCount := countSince(e.timestamps, now.Add(-constants.RateWindowMinute))
	if l.cfg.IdentityPerMinute > 0 && minuteCount >= l.cfg.IdentityPerMinute {
		metrics.RateLimitChecksTotal.WithLabelValues("identity_minute", "rejected").Inc()
		return apperrors.ErrRateLimited.
			WithDetail("scope", "identity_minute").
			WithDetail("identity", identity).
			WithDetail("retry_after_seconds", retryAfterSeconds(e.timestamps, now, constants.RateWindowMinute, l.cfg.IdentityPerMinute))
	}

	if l.cfg.IdentityPerHour > 0 && len(e.timestamps) >= l.cfg.IdentityPerHour {
		metrics.RateLimitChecksTotal.WithLabelValues("identity_hour", "rejected").Inc()
		return apperrors.ErrRateLimited.
			WithDetail("scope", "identity_hour").
			WithDetail("identity", identity).
			WithDetail("retry_after_seconds", retryAfterSeconds(e.timestamps, now, constants.RateWindowHour, l.cfg.IdentityPerHour))
	}

	if err := l.checkGlobal(ctx, action, now); err != nil {
		return err
	}

	e.timestamps = append(e.timestamps, now)
	metrics.RateLimitChecksTotal.WithLabelValues("identity", "admitted").Inc()

	l.appendAudit(ctx, identity, action, now)
	return nil
}

// Status reports current usage without consuming quota. When a durable
// store is configured the counts come from the shared audit log, so the
// report covers admissions made by every instance; a store failure degrades
// the report to the in-process window.
func (l *Limiter) Status(ctx context.Context, identity, action string) Status {
	e := l.entry(identity + "|" + action)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	e.timestamps = pruneOlderThan(e.timestamps, now.Add(-constants.RateWindowHour))

	minuteCount := countSince(e.timestamps, now.Add(-constants.RateWindowMinute))
	hourCount := len(e.timestamps)

	if l.store != nil {
		if count, err := l.countIdentity(ctx, identity, action, now.Add(-constants.RateWindowMinute)); err == nil && count > minuteCount {
			minuteCount = count
		}
		if count, err := l.countIdentity(ctx, identity, action, now.Add(-constants.RateWindowHour)); err == nil && count > hourCount {
			hourCount = count
		}
	}

	return Status{
		Identity:           identity,
		Action:             action,
		RequestsLastMinute: minuteCount,
		RequestsLastHour:   hourCount,
		RemainingMinute:    remaining(l.cfg.IdentityPerMinute, minuteCount),
		RemainingHour:      remaining(l.cfg.IdentityPerHour, hourCount),
	}
}

// StartJanitor periodically drops entries whose windows have fully drained.
// The janitor runs outside any request scope, so it recovers its own panics.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				apperrors.RecoverPanicWithCallback(r, func(err error) {
					l.logger.Errorw("Rate limit janitor panic", "error", err)
				})
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-constants.RateWindowHour)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		e.mu.Lock()
		e.timestamps = pruneOlderThan(e.timestamps, cutoff)
		empty := len(e.timestamps) == 0
		e.mu.Unlock()
		if empty {
			delete(l.entries, key)
		}
	}
}

func (l *Limiter) entry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	return e
}

// checkGlobal consults the durable log. A store failure never rejects the
// request; enforcement degrades to the per-identity windows.
func (l *Limiter) checkGlobal(ctx context.Context, action string, now time.Time) error {
	if l.store == nil {
		return nil
	}

	if l.cfg.GlobalPerMinute > 0 {
		count, err := l.countGlobal(ctx, action, now.Add(-constants.RateWindowMinute))
		if err != nil {
			return nil
		}
		if count >= l.cfg.GlobalPerMinute {
			metrics.RateLimitChecksTotal.WithLabelValues("global_minute", "rejected").Inc()
			return apperrors.ErrRateLimited.
				WithDetail("scope", "global_minute").
				WithDetail("retry_after_seconds", 60)
		}
	}

	if l.cfg.GlobalPerHour > 0 {
		count, err := l.countGlobal(ctx, action, now.Add(-constants.RateWindowHour))
		if err != nil {
			return nil
		}
		if count >= l.cfg.GlobalPerHour {
			metrics.RateLimitChecksTotal.WithLabelValues("global_hour", "rejected").Inc()
			return apperrors.ErrRateLimited.
				WithDetail("scope", "global_hour").
				WithDetail("retry_after_seconds", 3600)
		}
	}

	return nil
}

func (l *Limiter) countGlobal(ctx context.Context, action string, since time.Time) (int, error) {
	countCtx, cancel := context.WithTimeout(ctx, l.cfg.AuditTimeout)
	defer cancel()

	count, err := l.store.CountSince(countCtx, action, since)
	if err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("ratelimit", "memory_only", "count_failed").Inc()
		l.logger.WarnwCtx(ctx, "Audit store count failed, enforcing memory-only limits",
			"action", action,
			"error", err,
		)
		return 0, apperrors.ErrStorageDegraded.WithCause(err)
	}
	return count, nil
}

func (l *Limiter) countIdentity(ctx context.Context, identity, action string, since time.Time) (int, error) {
	countCtx, cancel := context.WithTimeout(ctx, l.cfg.AuditTimeout)
	defer cancel()

	count, err := l.store.CountSinceForIdentity(countCtx, identity, action, since)
	if err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("ratelimit", "memory_only", "identity_count_failed").Inc()
		l.logger.WarnwCtx(ctx, "Audit store identity count failed, reporting memory-only usage",
			"identity", identity,
			"action", action,
			"error", err,
		)
		return 0, apperrors.ErrStorageDegraded.WithCause(err)
	}
	return count, nil
}

// appendAudit writes the admission event with a retry budget that fits
// inside the audit timeout. Failure is logged, never fatal.
func (l *Limiter) appendAudit(ctx context.Context, identity, action string, occurredAt time.Time) {
	if l.store == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, l.cfg.AuditTimeout)
	defer cancel()

	err := retry.Retry(writeCtx, retry.TightPolicy(l.cfg.AuditTimeout), func() error {
		return l.store.Append(writeCtx, identity, action, occurredAt)
	})
	if err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("ratelimit", "memory_only", "append_failed").Inc()
		l.logger.WarnwCtx(ctx, "Audit store append failed, event tracked in memory only",
			"identity", identity,
			"action", action,
			"error", err,
		)
	}
}

func pruneOlderThan(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[idx:]...)
}

func countSince(timestamps []time.Time, cutoff time.Time) int {
	count := 0
	for i := len(timestamps) - 1; i >= 0; i-- {
		if timestamps[i].After(cutoff) {
			count++
		} else {
			break
		}
	}
	return count
}

func remaining(cap, used int) int {
	if cap <= 0 {
		return -1
	}
	if used >= cap {
		return 0
	}
	return cap - used
}

// retryAfterSeconds reports when the oldest in-window event ages out and a
// slot opens up.
func retryAfterSeconds(timestamps []time.Time, now time.Time, window time.Duration, cap int) int {
	inWindow := make([]time.Time, 0, len(timestamps))
	cutoff := now.Add(-window)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			inWindow = append(inWindow, ts)
		}
	}
	if len(inWindow) < cap || len(inWindow) == 0 {
		return 1
	}

	oldest := inWindow[len(inWindow)-cap]
	wait := oldest.Add(window).Sub(now)
	seconds := int(wait.Seconds()) + 1
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
