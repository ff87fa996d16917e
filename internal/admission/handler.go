package admission

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gavel/internal/constants"
	"gavel/internal/logger"
	"gavel/internal/webhook"
	apperrors "gavel/pkg/errors"
	"gavel/pkg/metrics"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/webhook", h.Handshake)
	router.POST("/webhook", h.Receive)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/messages/validate", h.ValidateMessage)
		v1.GET("/limits/:identity", h.LimitStatus)
		v1.GET("/quarantine", h.ListQuarantined)
	}
}

// Handshake answers the provider's GET subscription check by echoing the
// challenge when the verify token matches.
func (h *Handler) Handshake(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	echo, ok := h.service.HandshakeChallenge(mode, token, challenge)
	if !ok {
		h.logger.WarnwCtx(c.Request.Context(), "Webhook handshake rejected",
			"mode", mode,
			"client_ip", c.ClientIP(),
		)
		c.JSON(http.StatusForbidden, gin.H{
			"error":      "verification failed",
			"error_code": "HANDSHAKE_REJECTED",
		})
		return
	}

	c.String(http.StatusOK, echo)
}

// Receive handles a POST delivery. Signature and structural failures are
// rejected with an error status; content-level failures still acknowledge
// with 200 so the provider does not redeliver a message we chose to drop.
func (h *Handler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("read_error").Inc()
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrPayloadMalformed.WithCause(err)))
		return
	}

	signature := c.GetHeader(constants.SignatureHeader)
	verdict := h.service.ValidateWebhookRequest(ctx, body, signature, c.ContentType())
	if !verdict.Admitted {
		h.rejectDelivery(c, verdict)
		return
	}
	for _, warning := range verdict.Warnings {
		h.logger.WarnwCtx(ctx, "Webhook request warning", "warning", warning)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrPayloadMalformed.WithCause(err)))
		return
	}

	structure := webhook.ValidateStructure(payload)
	for _, warning := range structure.Warnings {
		h.logger.WarnwCtx(ctx, "Webhook structure warning", "warning", warning)
	}
	if !structure.Valid {
		metrics.WebhookDeliveriesTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
			apperrors.ErrPayloadMalformed.WithDetail("errors", structure.Errors),
		))
		return
	}

	result := h.service.ProcessDelivery(ctx, payload)
	switch {
	case result == nil:
		metrics.WebhookDeliveriesTotal.WithLabelValues("no_message").Inc()
	case result.Admitted:
		metrics.WebhookDeliveriesTotal.WithLabelValues("admitted").Inc()
	default:
		// Dropped message, still acknowledged.
		metrics.WebhookDeliveriesTotal.WithLabelValues("dropped").Inc()
		h.logger.InfowCtx(ctx, "Delivery acknowledged but not admitted",
			"errors", result.Errors,
			"warnings", result.Warnings,
		)
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// ValidateMessage exposes the content pipeline to direct API callers. Unlike
// the webhook path, failures here are surfaced as real HTTP errors.
func (h *Handler) ValidateMessage(c *gin.Context) {
	var req struct {
		Identity string `json:"identity" binding:"required"`
		Content  string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrValidation.WithCause(err)))
		return
	}

	verdict := h.service.ValidateIncomingMessage(c.Request.Context(), req.Identity, req.Content)
	if verdict.Admitted {
		c.JSON(http.StatusOK, verdict)
		return
	}

	if len(verdict.Errors) > 0 && verdict.Errors[0] == ErrorKindRateLimitExceeded {
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "rate limit exceeded",
			"error_code": "RATE_LIMIT_EXCEEDED",
			"verdict":    verdict,
		})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":      "validation failed",
		"error_code": "VALIDATION_ERROR",
		"verdict":    verdict,
	})
}

// LimitStatus reports remaining quota for an identity without consuming it.
func (h *Handler) LimitStatus(c *gin.Context) {
	status, err := h.service.LimitStatus(c.Request.Context(), c.Param("identity"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrValidation.WithCause(err)))
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListQuarantined returns recently quarantined deliveries for operator
// review, optionally filtered by rejection reason.
func (h *Handler) ListQuarantined(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)

	messages, err := h.service.RecentRejections(c.Request.Context(), c.Query("reason"), limit)
	if err != nil {
		c.JSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *Handler) rejectDelivery(c *gin.Context, verdict *Verdict) {
	kind := ""
	if len(verdict.Errors) > 0 {
		kind = verdict.Errors[0]
	}

	switch kind {
	case ErrorKindSignatureInvalid:
		metrics.WebhookDeliveriesTotal.WithLabelValues("signature_invalid").Inc()
		h.logger.WarnwCtx(c.Request.Context(), "Webhook delivery rejected: invalid signature",
			"client_ip", c.ClientIP(),
		)
		c.JSON(http.StatusForbidden, apperrors.ToErrorResponse(apperrors.ErrSignatureInvalid))
	default:
		metrics.WebhookDeliveriesTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrPayloadMalformed))
	}
}
