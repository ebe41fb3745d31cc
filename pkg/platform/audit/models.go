package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType tags what kind of action an audit event records. The set is a
// stable taxonomy: downstream queries and statistics group on it, so wrappers
// in the logger package fix the type instead of letting callers spell it.
type EventType string

const (
	// Patient record events
	EventPatientCreated EventType = "PATIENT_CREATED"
	EventPatientUpdated EventType = "PATIENT_UPDATED"
	EventPatientDeleted EventType = "PATIENT_DELETED"
	EventPatientViewed  EventType = "PATIENT_VIEWED"

	// Account events
	EventUserLogin       EventType = "USER_LOGIN"
	EventUserLogout      EventType = "USER_LOGOUT"
	EventPasswordChanged EventType = "PASSWORD_CHANGED"
	EventMFAEnabled      EventType = "MFA_ENABLED"
	EventMFADisabled     EventType = "MFA_DISABLED"

	// Security and data-governance events
	EventSecurity   EventType = "SECURITY_EVENT"
	EventDataExport EventType = "DATA_EXPORT"
	EventDataPurge  EventType = "DATA_PURGE"
	EventSystem     EventType = "SYSTEM_EVENT"
)

var knownEventTypes = map[EventType]struct{}{
	EventPatientCreated:  {},
	EventPatientUpdated:  {},
	EventPatientDeleted:  {},
	EventPatientViewed:   {},
	EventUserLogin:       {},
	EventUserLogout:      {},
	EventPasswordChanged: {},
	EventMFAEnabled:      {},
	EventMFADisabled:     {},
	EventSecurity:        {},
	EventDataExport:      {},
	EventDataPurge:       {},
	EventSystem:          {},
}

// Known reports whether the type belongs to the taxonomy. Unknown types read
// back from storage are kept verbatim; only new writes are checked.
func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// ParseEventType normalizes user input ("patient_created", " USER_LOGIN ")
// into a known EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Known() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Severity is the coarse alerting level of an event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is one of the three levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity accepts any casing of INFO, WARNING or CRITICAL.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// SystemUsername is recorded when an event carries no actor at all.
const SystemUsername = "system"

// Actor is the audit context: who performed the action and from where. It is
// built once at the boundary (HTTP middleware, login flow) and passed down
// explicitly; nothing below the boundary looks identity up on its own.
type Actor struct {
	UserID    string
	Username  string
	IPAddress string
}

// IsZero reports whether no identity field is set.
func (a Actor) IsZero() bool {
	return a.UserID == "" && a.Username == "" && a.IPAddress == ""
}

// Normalized trims fields and attributes anonymous actions to the system.
func (a Actor) Normalized() Actor {
	a.UserID = strings.TrimSpace(a.UserID)
	a.Username = strings.TrimSpace(a.Username)
	a.IPAddress = strings.TrimSpace(a.IPAddress)
	if a.IsZero() {
		a.Username = SystemUsername
	}
	return a
}

// Event is one immutable audit record. Once appended it is never updated;
// the only removal path is an explicit retention purge.
type Event struct {
	EventID     string
	EventType   EventType
	Severity    Severity
	Description string
	ResourceID  string
	Actor       Actor
	Timestamp   time.Time
	ExtraData   json.RawMessage
}

// Entry is a request to record an event. The logger turns it into an Event by
// assigning the timestamp (and the ID, unless one was pre-assigned).
type Entry struct {
	EventID     string
	EventType   EventType
	Severity    Severity
	Description string
	ResourceID  string
	Actor       Actor
	// Payload is any JSON-marshalable value, normally one of the typed
	// payloads in payload.go.
	Payload any
}

// Statistics aggregates stored events.
type Statistics struct {
	TotalEvents int               `json:"total_events"`
	EventTypes  map[EventType]int `json:"event_types"`
	Severities  map[Severity]int  `json:"severities"`
	Users       map[string]int    `json:"users"`
	FirstEvent  *time.Time        `json:"first_event,omitempty"`
	LastEvent   *time.Time        `json:"last_event,omitempty"`
}

// NewStatistics returns an empty aggregate with initialized maps.
func NewStatistics() Statistics {
	return Statistics{
		EventTypes: make(map[EventType]int),
		Severities: make(map[Severity]int),
		Users:      make(map[string]int),
	}
}

// Add folds a single event into the aggregate. Stores without server-side
// grouping use it.
func (s *Statistics) Add(e Event) {
	s.TotalEvents++
	s.EventTypes[e.EventType]++
	s.Severities[e.Severity]++
	if e.Actor.Username != "" {
		s.Users[e.Actor.Username]++
	}
	ts := e.Timestamp
	if s.FirstEvent == nil || ts.Before(*s.FirstEvent) {
		s.FirstEvent = &ts
	}
	if s.LastEvent == nil || ts.After(*s.LastEvent) {
		s.LastEvent = &ts
	}
}
