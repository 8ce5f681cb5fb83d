package chat

import (
	"bytes"
	"encoding/json"
)

// EventPayload is a session event pushed by the agent service.
type EventPayload struct {
	Type      string          `json:"type"`
	AgentName string          `json:"agent_name,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DisplayBody picks the text a presenter shows for the event:
// payload.message, then payload, then message, then the whole record.
// A payload sent as null is present and renders as "null".
func (e EventPayload) DisplayBody() string {
	if payload := bytes.TrimSpace(e.Payload); len(payload) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(payload, &obj); err == nil {
			if msg, ok := obj["message"]; ok {
				return rawText(msg)
			}
		}
		return rawText(payload)
	}

	if e.Message != "" {
		return e.Message
	}

	data, err := json.Marshal(e)
	if err != nil {
		return e.Type
	}
	return string(data)
}

// rawText unquotes JSON strings and returns any other value as serialized JSON.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
