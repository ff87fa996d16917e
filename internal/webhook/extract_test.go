package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textDeliveryPayload(t *testing.T) map[string]interface{} {
	t.Helper()
	return decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"phone_number_id": "123"},
					"contacts": [{"profile": {"name": "maria silva"}, "wa_id": "5511999999999"}],
					"messages": [{
						"id": "wamid.abc123",
						"from": "5511999999999",
						"type": "text",
						"text": {"body": "Hello, I need a lawyer"}
					}]
				}
			}]
		}]
	}`)
}

func TestExtractMessage_TextMessage(t *testing.T) {
	msg, warnings := ExtractMessage(textDeliveryPayload(t))

	require.NotNil(t, msg)
	assert.Empty(t, warnings)
	assert.Equal(t, "wamid.abc123", msg.MessageID)
	assert.Equal(t, "5511999999999", msg.From)
	assert.Equal(t, MessageTypeText, msg.Type)
	assert.Equal(t, "Hello, I need a lawyer", msg.TextBody)
	assert.Equal(t, "maria silva", msg.ContactName)
}

func TestExtractMessage_InteractiveButtonReply(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messages": [{
						"id": "wamid.btn1",
						"from": "5511999999999",
						"type": "interactive",
						"interactive": {"type": "button_reply", "button_reply": {"id": "schedule_consult", "title": "Schedule"}}
					}]
				}
			}]
		}]
	}`)

	msg, _ := ExtractMessage(payload)
	require.NotNil(t, msg)
	assert.Equal(t, MessageTypeInteractive, msg.Type)
	assert.Equal(t, "schedule_consult", msg.InteractiveReplyID)
}

func TestExtractMessage_UnknownType(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messages": [{"id": "wamid.img1", "from": "5511999999999", "type": "image"}]
				}
			}]
		}]
	}`)

	msg, _ := ExtractMessage(payload)
	require.NotNil(t, msg)
	assert.Equal(t, MessageTypeUnknown, msg.Type)
	assert.Empty(t, msg.TextBody)
}

func TestExtractMessage_StatusOnlyDelivery(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {"statuses": [{"id": "wamid.abc", "status": "delivered"}]}
			}]
		}]
	}`)

	msg, warnings := ExtractMessage(payload)
	assert.Nil(t, msg)
	assert.Empty(t, warnings)
}

func TestExtractMessage_BatchedMessagesWarns(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"messages": [
						{"id": "wamid.1", "from": "5511999999999", "type": "text", "text": {"body": "first"}},
						{"id": "wamid.2", "from": "5511999999999", "type": "text", "text": {"body": "second"}}
					]
				}
			}]
		}]
	}`)

	msg, warnings := ExtractMessage(payload)
	require.NotNil(t, msg)
	assert.Equal(t, "wamid.1", msg.MessageID)
	assert.Equal(t, "first", msg.TextBody)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "1 additional message")
}

func TestExtractMessage_EmptyPayload(t *testing.T) {
	msg, _ := ExtractMessage(map[string]interface{}{})
	assert.Nil(t, msg)
}
