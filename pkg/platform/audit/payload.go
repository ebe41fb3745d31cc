package audit

import (
	"encoding/json"
	"fmt"
)

// Typed payloads for the extra_data column. Each event type that carries
// structured data has one shape; anything else decodes to map[string]any.

// LoginPayload is attached to USER_LOGIN. Successful and failed attempts share
// the event type and differ in Success.
type LoginPayload struct {
	Username     string `json:"username"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// PatientPayload is attached to PATIENT_* events. Data carries the created
// record; Before/After carry an update diff.
type PatientPayload struct {
	PatientID string         `json:"patient_id"`
	Data      map[string]any `json:"data,omitempty"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`
	Changed   []string       `json:"changed_fields,omitempty"`
}

// MFAPayload is attached to MFA_ENABLED / MFA_DISABLED.
type MFAPayload struct {
	Username string `json:"username"`
	Method   string `json:"method,omitempty"`
}

// ExportPayload is attached to DATA_EXPORT.
type ExportPayload struct {
	Format      string `json:"format"`
	Destination string `json:"destination"`
	RecordCount int    `json:"record_count"`
}

// PurgePayload is attached to DATA_PURGE.
type PurgePayload struct {
	Cutoff      string `json:"cutoff"`
	Archive     string `json:"archive"`
	RecordCount int64  `json:"record_count"`
}

// SecurityPayload is attached to SECURITY_EVENT.
type SecurityPayload struct {
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// EncodePayload serializes a payload for storage. A nil payload stays nil
// (NULL column); raw JSON is validated and kept as is.
func EncodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 {
			return nil, nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("extra data is not valid JSON")
		}
		return p, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal extra data: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// DecodePayload returns the typed payload for the event type, or the generic
// JSON value (usually map[string]any) for types without a fixed shape.
// Events without extra data return nil.
func (e Event) DecodePayload() (any, error) {
	if len(e.ExtraData) == 0 {
		return nil, nil
	}
	var target any
	switch e.EventType {
	case EventUserLogin:
		target = &LoginPayload{}
	case EventPatientCreated, EventPatientUpdated, EventPatientDeleted, EventPatientViewed:
		target = &PatientPayload{}
	case EventMFAEnabled, EventMFADisabled:
		target = &MFAPayload{}
	case EventDataExport:
		target = &ExportPayload{}
	case EventDataPurge:
		target = &PurgePayload{}
	case EventSecurity:
		target = &SecurityPayload{}
	default:
		var v any
		if err := json.Unmarshal(e.ExtraData, &v); err != nil {
			return nil, fmt.Errorf("decode extra data: %w", err)
		}
		return v, nil
	}
	if err := json.Unmarshal(e.ExtraData, target); err != nil {
		return nil, fmt.Errorf("decode %s extra data: %w", e.EventType, err)
	}
	return target, nil
}
