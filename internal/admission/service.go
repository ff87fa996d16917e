package admission

import (
	"context"
	"strings"
	"time"

	"gavel/internal/broker"
	"gavel/internal/config"
	"gavel/internal/constants"
	"gavel/internal/dedup"
	"gavel/internal/logger"
	"gavel/internal/quarantine"
	"gavel/internal/ratelimit"
	"gavel/internal/sanitize"
	"gavel/internal/webhook"
	apperrors "gavel/pkg/errors"
	"gavel/pkg/logging"
	"gavel/pkg/metrics"
	"gavel/pkg/models"
)

// QuarantineStore archives rejected deliveries and serves them back for
// operator review.
type QuarantineStore interface {
	Archive(ctx context.Context, msg quarantine.QuarantinedMessage) error
	ListRecent(ctx context.Context, reason string, limit int64) ([]quarantine.QuarantinedMessage, error)
}

// Service composes the verifier, structural validator, sanitizer, and rate
// limiter into one admission decision per delivery. Stages run in a fixed
// order and the first failing stage short-circuits the rest, so an abusive
// sender never reaches the more expensive checks.
type Service struct {
	verifier   *webhook.Verifier
	sanitizer  *sanitize.Sanitizer
	limiter    *ratelimit.Limiter
	dedup      *dedup.Service
	quarantine QuarantineStore
	producer   broker.Producer
	cfg        config.WebhookConfig
	topic      string
	logger     logger.Logger
}

type Options struct {
	Verifier   *webhook.Verifier
	Sanitizer  *sanitize.Sanitizer
	Limiter    *ratelimit.Limiter
	Dedup      *dedup.Service
	Quarantine QuarantineStore
	Producer   broker.Producer
	Webhook    config.WebhookConfig
	Topic      string
	Logger     logger.Logger
}

func NewService(opts Options) *Service {
	topic := opts.Topic
	if topic == "" {
		topic = constants.DefaultAdmittedTopic
	}
	return &Service{
		verifier:   opts.Verifier,
		sanitizer:  opts.Sanitizer,
		limiter:    opts.Limiter,
		dedup:      opts.Dedup,
		quarantine: opts.Quarantine,
		producer:   opts.Producer,
		cfg:        opts.Webhook,
		topic:      topic,
		logger:     opts.Logger,
	}
}

// ValidateWebhookRequest runs the transport-level checks on a delivery:
// payload size cap, then signature, then header soft checks. The size cap
// is decided before the signature so an oversized body is never hashed.
func (s *Service) ValidateWebhookRequest(ctx context.Context, body []byte, signature, contentType string) *Verdict {
	start := time.Now()
	defer func() {
		metrics.ObserveValidationDuration(time.Since(start), "webhook_request")
	}()

	if s.cfg.MaxPayloadBytes > 0 && len(body) > s.cfg.MaxPayloadBytes {
		s.logger.WarnwCtx(ctx, "Webhook payload exceeds size cap",
			"size", len(body),
			"max", s.cfg.MaxPayloadBytes,
		)
		return rejected(ErrorKindPayloadMalformed)
	}

	if !s.verifier.Verify(body, signature) {
		metrics.AdmissionVerdictsTotal.WithLabelValues("rejected", ErrorKindSignatureInvalid).Inc()
		return rejected(ErrorKindSignatureInvalid)
	}

	verdict := &Verdict{Admitted: true}
	if contentType != "" && !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
		verdict.Warnings = append(verdict.Warnings, "unexpected content type: "+contentType)
	}
	return verdict
}

// ValidateIncomingMessage runs the content-level pipeline for one message:
// identity normalization, then rate limiting, then text sanitization. Each
// stage's failure stops the pipeline and is the only error recorded.
func (s *Service) ValidateIncomingMessage(ctx context.Context, identity, content string) *Verdict {
	start := time.Now()
	defer func() {
		metrics.ObserveValidationDuration(time.Since(start), "incoming_message")
	}()

	normalized, err := s.sanitizer.NormalizePhone(identity)
	if err != nil {
		s.logger.InfowCtx(ctx, "Message rejected: identity failed normalization",
			"error", err,
		)
		return s.record(rejected(ErrorKindValidationFailed))
	}

	ctx = logging.WithIdentity(ctx, normalized)

	if err := s.limiter.CheckAndRecord(ctx, normalized, constants.ActionInboundMessage); err != nil {
		s.logger.InfowCtx(ctx, "Message rejected: rate limit exceeded",
			"error", err,
		)
		verdict := rejected(errorKind(err))
		verdict.Identity = normalized
		return s.record(verdict)
	}

	sanitized, err := s.sanitizer.SanitizeText(content, 0)
	if err != nil {
		s.logger.InfowCtx(ctx, "Message rejected: content failed sanitization",
			"error", err,
		)
		verdict := rejected(ErrorKindValidationFailed)
		verdict.Identity = normalized
		return s.record(verdict)
	}

	return s.record(&Verdict{
		Admitted:       true,
		Identity:       normalized,
		SanitizedText:  sanitized,
		OriginalLength: len(content),
	})
}

// ProcessDelivery handles the content-level stages for a structurally valid
// webhook payload: extraction, dedup, per-message validation, and handoff.
// It returns nil when the delivery carries nothing to admit (status-only
// deliveries are routine).
func (s *Service) ProcessDelivery(ctx context.Context, payload map[string]interface{}) *Verdict {
	message, extractWarnings := webhook.ExtractMessage(payload)
	if message == nil {
		return nil
	}

	if message.MessageID != "" {
		ctx = logging.WithMessageID(ctx, message.MessageID)
	}

	if s.dedup != nil && message.MessageID != "" {
		first, err := s.dedup.IsFirstDelivery(ctx, message.MessageID)
		if err != nil {
			verdict := rejected(ErrorKindStorageDegraded, extractWarnings...)
			verdict.Identity = message.From
			s.quarantineRejected(ctx, message, payload, verdict)
			return s.record(verdict)
		}
		if !first {
			// Not archived: the first delivery was already published or
			// quarantined, so a redelivery carries nothing new to review.
			s.logger.InfowCtx(ctx, "Duplicate delivery suppressed")
			return s.record(rejected(ErrorKindDuplicateDelivery, extractWarnings...))
		}
	}

	content := message.TextBody
	if message.Type == webhook.MessageTypeInteractive {
		content = message.InteractiveReplyID
	}

	verdict := s.ValidateIncomingMessage(ctx, message.From, content)
	verdict.Warnings = append(extractWarnings, verdict.Warnings...)

	if !verdict.Admitted {
		s.quarantineRejected(ctx, message, payload, verdict)
		return verdict
	}

	if message.ContactName != "" {
		name, err := s.sanitizer.NormalizeName(message.ContactName)
		if err != nil {
			verdict.Warnings = append(verdict.Warnings, "contact name dropped: failed normalization")
		} else {
			verdict.ContactName = name
		}
	}

	s.publishAdmitted(ctx, message, verdict)
	return verdict
}

// HandshakeChallenge answers the provider's subscription handshake. The
// challenge is echoed only for a subscribe request with the right token.
func (s *Service) HandshakeChallenge(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || token != s.cfg.VerifyToken {
		return "", false
	}
	return challenge, true
}

// LimitStatus reports the current quota for one identity without consuming
// any of it. The identity is normalized first so formatted and bare phone
// numbers map to the same window.
func (s *Service) LimitStatus(ctx context.Context, identity string) (ratelimit.Status, error) {
	normalized, err := s.sanitizer.NormalizePhone(identity)
	if err != nil {
		return ratelimit.Status{}, err
	}
	return s.limiter.Status(ctx, normalized, constants.ActionInboundMessage), nil
}

// RecentRejections lists quarantined deliveries, newest first, optionally
// filtered by rejection reason.
func (s *Service) RecentRejections(ctx context.Context, reason string, limit int64) ([]quarantine.QuarantinedMessage, error) {
	if s.quarantine == nil {
		return nil, apperrors.ErrNotFound.WithDetail("reason", "quarantine archive is not configured")
	}
	return s.quarantine.ListRecent(ctx, reason, limit)
}

func (s *Service) record(verdict *Verdict) *Verdict {
	outcome := "rejected"
	reason := "none"
	if verdict.Admitted {
		outcome = "admitted"
	} else if len(verdict.Errors) > 0 {
		reason = verdict.Errors[0]
	}
	metrics.AdmissionVerdictsTotal.WithLabelValues(outcome, reason).Inc()
	return verdict
}

func (s *Service) quarantineRejected(ctx context.Context, message *webhook.ExtractedMessage, payload map[string]interface{}, verdict *Verdict) {
	if s.quarantine == nil {
		return
	}

	reason := "unknown"
	if len(verdict.Errors) > 0 {
		reason = verdict.Errors[0]
	}

	err := s.quarantine.Archive(ctx, quarantine.QuarantinedMessage{
		ID:       message.MessageID,
		Identity: verdict.Identity,
		Reason:   reason,
		Errors:   verdict.Errors,
		Warnings: verdict.Warnings,
		Payload:  payload,
	})
	if err != nil {
		s.logger.WarnwCtx(ctx, "Failed to quarantine rejected message",
			"error", err,
		)
	}
}

func (s *Service) publishAdmitted(ctx context.Context, message *webhook.ExtractedMessage, verdict *Verdict) {
	if s.producer == nil {
		return
	}

	admitted := models.AdmittedMessage{
		ID:                 message.MessageID,
		From:               verdict.Identity,
		Type:               message.Type,
		Text:               verdict.SanitizedText,
		InteractiveReplyID: message.InteractiveReplyID,
		ContactName:        verdict.ContactName,
		ReceivedAt:         time.Now().UTC().Format(time.RFC3339),
		Metadata: models.Metadata{
			RequestID:      logging.GetRequestID(ctx),
			OriginalLength: verdict.OriginalLength,
			SanitizedAt:    time.Now().UTC(),
		},
	}

	if err := s.producer.Publish(ctx, s.topic, admitted); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish admitted message",
			"error", err,
			"topic", s.topic,
		)
	}
}

func errorKind(err error) string {
	switch {
	case apperrors.IsRateLimited(err):
		return ErrorKindRateLimitExceeded
	case apperrors.IsStorageDegraded(err):
		return ErrorKindStorageDegraded
	case apperrors.IsSignatureInvalid(err):
		return ErrorKindSignatureInvalid
	case apperrors.IsPayloadMalformed(err):
		return ErrorKindPayloadMalformed
	default:
		return ErrorKindValidationFailed
	}
}
