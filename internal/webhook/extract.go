package webhook

import "fmt"

// ExtractMessage distills the first message of the first change of the
// first entry. The provider can batch several messages per delivery; only
// the first is processed and the skipped count is reported as a warning so
// the drop is visible in logs rather than silent.
func ExtractMessage(payload map[string]interface{}) (*ExtractedMessage, []string) {
	var warnings []string

	value := firstChangeValue(payload)
	if value == nil {
		return nil, warnings
	}

	messages, _ := value["messages"].([]interface{})
	if len(messages) == 0 {
		return nil, warnings
	}
	if skipped := countExtra(payload); skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("delivery carries %d additional message(s) beyond the first, skipped", skipped))
	}

	message, ok := messages[0].(map[string]interface{})
	if !ok {
		return nil, append(warnings, "first message is not an object")
	}

	extracted := &ExtractedMessage{
		MessageID:   stringField(message, "id"),
		From:        stringField(message, "from"),
		Type:        MessageTypeUnknown,
		ContactName: contactName(value),
	}

	switch stringField(message, "type") {
	case "text":
		extracted.Type = MessageTypeText
		if text, ok := message["text"].(map[string]interface{}); ok {
			extracted.TextBody = stringField(text, "body")
		}
	case "interactive":
		extracted.Type = MessageTypeInteractive
		extracted.InteractiveReplyID = interactiveReplyID(message)
	}

	return extracted, warnings
}

func firstChangeValue(payload map[string]interface{}) map[string]interface{} {
	entries, _ := payload["entry"].([]interface{})
	if len(entries) == 0 {
		return nil
	}
	entry, _ := entries[0].(map[string]interface{})
	if entry == nil {
		return nil
	}
	changes, _ := entry["changes"].([]interface{})
	if len(changes) == 0 {
		return nil
	}
	change, _ := changes[0].(map[string]interface{})
	if change == nil {
		return nil
	}
	value, _ := change["value"].(map[string]interface{})
	return value
}

// countExtra totals the messages beyond the first across all entries and
// changes of the delivery.
func countExtra(payload map[string]interface{}) int {
	total := 0
	entries, _ := payload["entry"].([]interface{})
	for _, rawEntry := range entries {
		entry, _ := rawEntry.(map[string]interface{})
		if entry == nil {
			continue
		}
		changes, _ := entry["changes"].([]interface{})
		for _, rawChange := range changes {
			change, _ := rawChange.(map[string]interface{})
			if change == nil {
				continue
			}
			value, _ := change["value"].(map[string]interface{})
			if value == nil {
				continue
			}
			messages, _ := value["messages"].([]interface{})
			total += len(messages)
		}
	}
	if total > 0 {
		total--
	}
	return total
}

func contactName(value map[string]interface{}) string {
	contacts, _ := value["contacts"].([]interface{})
	if len(contacts) == 0 {
		return ""
	}
	contact, _ := contacts[0].(map[string]interface{})
	if contact == nil {
		return ""
	}
	profile, _ := contact["profile"].(map[string]interface{})
	if profile == nil {
		return ""
	}
	return stringField(profile, "name")
}

func interactiveReplyID(message map[string]interface{}) string {
	interactive, _ := message["interactive"].(map[string]interface{})
	if interactive == nil {
		return ""
	}
	if buttonReply, ok := interactive["button_reply"].(map[string]interface{}); ok {
		return stringField(buttonReply, "id")
	}
	if listReply, ok := interactive["list_reply"].(map[string]interface{}); ok {
		return stringField(listReply, "id")
	}
	return ""
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
