package integration

import (
	"time"

	"gavel/internal/config"
	"gavel/internal/constants"
	"gavel/internal/logger"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		IdentityPerMinute: 5,
		IdentityPerHour:   50,
		GlobalPerMinute:   100,
		GlobalPerHour:     1000,
		AuditTimeout:      2 * time.Second,
	}
}

func createTestCircuitBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  3,
		Interval:     10 * time.Second,
		Timeout:      5 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

func createTestDedupConfig() config.DedupConfig {
	return config.DedupConfig{
		TTLSeconds:   300,
		OnRedisError: constants.FallbackAllow,
	}
}
