package dedup

import (
	"context"
	"fmt"
	"time"

	"gavel/internal/config"
	"gavel/internal/constants"
	"gavel/internal/logger"
	"gavel/pkg/metrics"
)

// Service suppresses redelivered webhook messages by claiming each provider
// message ID in Redis. The provider retries deliveries it considers
// unacknowledged, so duplicates are routine, not exceptional.
type Service struct {
	repo   Repository
	cfg    config.DedupConfig
	logger logger.Logger
}

func NewService(repo Repository, cfg config.DedupConfig, log logger.Logger) *Service {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = constants.DefaultDedupTTLSeconds
	}
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: log,
	}
}

// IsFirstDelivery reports whether this message ID has not been seen within
// the TTL. A Redis failure resolves per the configured fallback: allow
// risks reprocessing, deny risks dropping a legitimate message.
func (s *Service) IsFirstDelivery(ctx context.Context, messageID string) (bool, error) {
	if s.repo == nil {
		return true, nil
	}

	key := constants.CacheKeyPrefixDedup + messageID
	unique, err := s.repo.SetNX(ctx, key, time.Now().Unix(), time.Duration(s.cfg.TTLSeconds)*time.Second)
	if err != nil {
		metrics.DedupMessagesTotal.WithLabelValues("error").Inc()
		if s.cfg.OnRedisError == constants.FallbackAllow {
			metrics.FallbackUsageTotal.WithLabelValues("dedup", "allow_on_error", "redis_error").Inc()
			s.logger.WarnwCtx(ctx, "Redis error during dedup check, allowing message",
				"message_id", messageID,
				"error", err,
			)
			return true, nil
		}
		metrics.FallbackUsageTotal.WithLabelValues("dedup", "deny_on_error", "redis_error").Inc()
		return false, fmt.Errorf("redis error during dedup check for message %s: %w", messageID, err)
	}

	if unique {
		metrics.DedupMessagesTotal.WithLabelValues("unique").Inc()
	} else {
		metrics.DedupMessagesTotal.WithLabelValues("duplicate").Inc()
	}
	return unique, nil
}
