package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is the business category of an event.
type Type string

const (
	TypeTaskCompleted   Type = "TASK_COMPLETED"
	TypeTaskAssigned    Type = "TASK_ASSIGNED"
	TypeFlowStarted     Type = "FLOW_STARTED"
	TypeFlowCompleted   Type = "FLOW_COMPLETED"
	TypeStageAdvanced   Type = "STAGE_ADVANCED"
	TypeRecordUpdated   Type = "RECORD_UPDATED"
	TypeWebhookReceived Type = "WEBHOOK_RECEIVED"
)

// KnownType reports whether t is one of the catalogued event types. The
// HTTP ingest rejects anything else; the bus itself carries any type.
func KnownType(t Type) bool {
	switch t {
	case TypeTaskCompleted, TypeTaskAssigned, TypeFlowStarted, TypeFlowCompleted,
		TypeStageAdvanced, TypeRecordUpdated, TypeWebhookReceived:
		return true
	default:
		return false
	}
}

// Envelope is the wire shape carried inside one stream entry.
// data.sourceId correlates to the originating business entity when applicable.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// SourceID extracts the optional sourceId correlation key from a payload.
func SourceID(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload["sourceId"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// EncodeEnvelope serializes an event payload into the wire shape.
func EncodeEnvelope(eventType Type, at time.Time, payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: encode payload: %w", err)
	}
	env := Envelope{
		Type:      string(eventType),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses the wire shape back into type and payload.
func DecodeEnvelope(raw []byte) (Type, map[string]any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("events: decode envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("events: envelope missing type")
	}
	payload := map[string]any{}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return "", nil, fmt.Errorf("events: decode payload: %w", err)
		}
	}
	return Type(env.Type), payload, nil
}
