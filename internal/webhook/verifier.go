package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"gavel/internal/constants"
	"gavel/internal/logger"
)

// Verifier authenticates deliveries by recomputing the provider's
// HMAC-SHA256 over the raw body. An empty secret puts the verifier in open
// mode: every delivery passes and each one is logged as unverified.
type Verifier struct {
	secret []byte
	logger logger.Logger
}

func NewVerifier(secret string, log logger.Logger) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		logger: log,
	}
}

// Verify checks the signature header value against the raw request body.
// Comparison is constant-time.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if len(v.secret) == 0 {
		v.logger.Warnw("Webhook secret not configured, accepting unverified delivery")
		return true
	}

	if !strings.HasPrefix(signature, constants.SignaturePrefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(signature, constants.SignaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(expected, provided)
}

// Sign produces the signature header value the provider would send for the
// given body. Used by tests and outbound callbacks.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return constants.SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
