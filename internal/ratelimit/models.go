package ratelimit

import "time"

// AuditEvent is one admitted request, appended to the durable log. Global
// caps are computed by counting events in a trailing window, which keeps
// them consistent across service instances.
type AuditEvent struct {
	ID         int64     `json:"id"`
	Identity   string    `json:"identity"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Status is a read-only quota snapshot. Reading it never consumes quota.
type Status struct {
	Identity           string `json:"identity"`
	Action             string `json:"action"`
	RequestsLastMinute int    `json:"requests_last_minute"`
	RequestsLastHour   int    `json:"requests_last_hour"`
	RemainingMinute    int    `json:"remaining_minute"`
	RemainingHour      int    `json:"remaining_hour"`
}
