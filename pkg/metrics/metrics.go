package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook deliveries received, by outcome (count)",
		},
		[]string{"status"},
	)

	AdmissionVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_verdicts_total",
			Help: "Total number of admission verdicts produced by the validation service (count)",
		},
		[]string{"outcome", "reason"},
	)

	ValidationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_duration_ms",
			Help:    "Duration of a validation pipeline stage in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"stage"},
	)

	SanitizerRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanitizer_rejections_total",
			Help: "Total number of inputs rejected by the sanitizer (count)",
		},
		[]string{"field", "reason"},
	)

	RateLimitChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Total number of sliding-window rate limit checks (count)",
		},
		[]string{"scope", "outcome"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_http_requests_total",
			Help: "Total number of HTTP requests seen by the per-client rate limit middleware (count)",
		},
		[]string{"status"},
	)

	AuditStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_audit_store_duration_ms",
			Help:    "Duration of durable audit store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"operation", "status"},
	)

	DedupMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_messages_total",
			Help: "Total number of messages checked for duplicate delivery (count)",
		},
		[]string{"status"},
	)

	QuarantineWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantine_writes_total",
			Help: "Total number of rejected messages archived to the quarantine store (count)",
		},
		[]string{"status"},
	)

	BrokerPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publish_total",
			Help: "Total number of admitted messages published to the broker (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times a degraded fallback path was taken (count)",
		},
		[]string{"component", "action", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failed requests through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

var (
	registerGatewayOnce        sync.Once
	registerCircuitBreakerOnce sync.Once
)

func RegisterGatewayMetrics() {
	registerGatewayOnce.Do(func() {
		prometheus.MustRegister(
			WebhookDeliveriesTotal,
			AdmissionVerdictsTotal,
			ValidationDuration,
			SanitizerRejectionsTotal,
			RateLimitChecksTotal,
			RateLimitRequestsTotal,
			AuditStoreDuration,
			DedupMessagesTotal,
			QuarantineWritesTotal,
			BrokerPublishTotal,
			FallbackUsageTotal,
		)
	})
}

func RegisterCircuitBreakerMetrics() {
	registerCircuitBreakerOnce.Do(func() {
		prometheus.MustRegister(
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
		)
	})
}

func ObserveValidationDuration(d time.Duration, stage string) {
	ValidationDuration.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func ObserveAuditStoreDuration(d time.Duration, operation, status string) {
	AuditStoreDuration.WithLabelValues(operation, status).Observe(float64(d.Milliseconds()))
}
