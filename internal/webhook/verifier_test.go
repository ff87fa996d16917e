package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gavel/internal/logger"
)

func TestVerifier_Verify_ValidSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	v := NewVerifier("topsecret", logger.NopLogger())

	assert.True(t, v.Verify(body, Sign(body, "topsecret")))
}

func TestVerifier_Verify_WrongSecret(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	v := NewVerifier("topsecret", logger.NopLogger())

	assert.False(t, v.Verify(body, Sign(body, "othersecret")))
}

func TestVerifier_Verify_TamperedBody(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	v := NewVerifier("topsecret", logger.NopLogger())
	signature := Sign(body, "topsecret")

	assert.False(t, v.Verify([]byte(`{"object":"tampered"}`), signature))
}

func TestVerifier_Verify_MissingPrefix(t *testing.T) {
	body := []byte(`{}`)
	v := NewVerifier("topsecret", logger.NopLogger())

	signature := Sign(body, "topsecret")
	assert.False(t, v.Verify(body, signature[len("sha256="):]))
}

func TestVerifier_Verify_MalformedHex(t *testing.T) {
	v := NewVerifier("topsecret", logger.NopLogger())

	assert.False(t, v.Verify([]byte(`{}`), "sha256=not-hex-at-all"))
	assert.False(t, v.Verify([]byte(`{}`), ""))
}

func TestVerifier_Verify_OpenModeWithoutSecret(t *testing.T) {
	v := NewVerifier("", logger.NopLogger())

	assert.True(t, v.Verify([]byte(`{}`), ""))
	assert.True(t, v.Verify([]byte(`{}`), "sha256=deadbeef"))
}
