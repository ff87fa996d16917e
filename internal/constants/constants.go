package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDedup = "dedup:msg:"
)

const (
	DefaultAdmittedTopic = "admitted_messages"
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Request admission limits. Config values override these; the webhook
// provider expects an acknowledgement well under 10 seconds.
const (
	DefaultMaxBodyBytes    = 100 * 1024
	DefaultMaxPayloadBytes = 100 * 1024
	DefaultMaxTextLength   = 4096
	DefaultMaxJSONLeafLen  = 1000
)

// Sliding-window rate limit defaults. Identity caps apply per phone number,
// global caps protect the whole deployment across instances.
const (
	DefaultIdentityPerMinute = 10
	DefaultIdentityPerHour   = 100
	DefaultGlobalPerMinute   = 600
	DefaultGlobalPerHour     = 10000

	RateWindowMinute = time.Minute
	RateWindowHour   = time.Hour

	DefaultAuditTimeout = 500 * time.Millisecond
)

const (
	DefaultDedupTTLSeconds = 86400
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	ExpectedWebhookObject = "whatsapp_business_account"
	SignaturePrefix       = "sha256="
	SignatureHeader       = "X-Hub-Signature-256"
)

const (
	ActionInboundMessage = "inbound_message"
	ActionAPIValidate    = "api_validate"
)
