package webhook

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestValidateStructure_ValidPayload(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{"field": "messages", "value": {"messages": []}}]
		}]
	}`)

	result := ValidateStructure(payload)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateStructure_CollectsAllErrors(t *testing.T) {
	payload := decodePayload(t, `{
		"entry": [{
			"changes": [{"field": "messages"}, {"value": {}}]
		}]
	}`)

	result := ValidateStructure(payload)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 3, "missing object, missing value, missing field are all reported")
}

func TestValidateStructure_MissingTopLevelKeys(t *testing.T) {
	result := ValidateStructure(map[string]interface{}{})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "missing required key: object")
	assert.Contains(t, result.Errors, "missing required key: entry")
}

func TestValidateStructure_EntryMustBeList(t *testing.T) {
	payload := decodePayload(t, `{"object": "whatsapp_business_account", "entry": "nope"}`)

	result := ValidateStructure(payload)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "key 'entry' must be a list")
}

func TestValidateStructure_UnexpectedObjectIsWarning(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "some_future_product",
		"entry": [{"id": "e1", "changes": [{"field": "messages", "value": {}}]}]
	}`)

	result := ValidateStructure(payload)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateStructure_MissingEntryIDIsWarning(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"field": "messages", "value": {}}]}]
	}`)

	result := ValidateStructure(payload)
	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "entry[0] is missing 'id'")
}

func TestValidateStructure_NoEntryHasChanges(t *testing.T) {
	payload := decodePayload(t, `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "e1"}, {"id": "e2"}]
	}`)

	result := ValidateStructure(payload)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "no entry carries a 'changes' list")
	assert.Len(t, result.Warnings, 2)
}
