package webhook

import (
	"fmt"

	"gavel/internal/constants"
)

// ValidateStructure checks the decoded payload against the provider's
// nested shape. Top-level shape problems are errors; optional substructure
// the provider may add or omit only produces warnings, so schema additions
// on the provider side do not break admission.
func ValidateStructure(payload map[string]interface{}) StructureResult {
	result := StructureResult{}

	object, hasObject := payload["object"]
	if !hasObject {
		result.Errors = append(result.Errors, "missing required key: object")
	} else if objectStr, ok := object.(string); !ok {
		result.Errors = append(result.Errors, "key 'object' must be a string")
	} else if objectStr != constants.ExpectedWebhookObject {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unexpected object value: %s", objectStr))
	}

	rawEntries, hasEntry := payload["entry"]
	if !hasEntry {
		result.Errors = append(result.Errors, "missing required key: entry")
		result.Valid = len(result.Errors) == 0
		return result
	}

	entries, ok := rawEntries.([]interface{})
	if !ok {
		result.Errors = append(result.Errors, "key 'entry' must be a list")
		result.Valid = false
		return result
	}

	entriesWithChanges := 0
	for i, rawEntry := range entries {
		entry, ok := rawEntry.(map[string]interface{})
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("entry[%d] must be an object", i))
			continue
		}

		if _, hasID := entry["id"]; !hasID {
			result.Warnings = append(result.Warnings, fmt.Sprintf("entry[%d] is missing 'id'", i))
		}

		rawChanges, hasChanges := entry["changes"]
		if !hasChanges {
			result.Warnings = append(result.Warnings, fmt.Sprintf("entry[%d] is missing 'changes'", i))
			continue
		}

		changes, ok := rawChanges.([]interface{})
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("entry[%d].changes must be a list", i))
			continue
		}

		entriesWithChanges++
		for j, rawChange := range changes {
			change, ok := rawChange.(map[string]interface{})
			if !ok {
				result.Errors = append(result.Errors, fmt.Sprintf("entry[%d].changes[%d] must be an object", i, j))
				continue
			}
			if _, hasField := change["field"]; !hasField {
				result.Errors = append(result.Errors, fmt.Sprintf("entry[%d].changes[%d] is missing 'field'", i, j))
			}
			if _, hasValue := change["value"]; !hasValue {
				result.Errors = append(result.Errors, fmt.Sprintf("entry[%d].changes[%d] is missing 'value'", i, j))
			}
		}
	}

	if len(entries) > 0 && entriesWithChanges == 0 {
		result.Errors = append(result.Errors, "no entry carries a 'changes' list")
	}

	result.Valid = len(result.Errors) == 0
	return result
}
