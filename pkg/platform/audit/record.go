package audit

import (
	"encoding/json"
	"fmt"
)

// Columns is the storage and export column order.
var Columns = []string{
	"event_id",
	"event_type",
	"severity",
	"description",
	"resource_id",
	"user_id",
	"username",
	"ip_address",
	"timestamp",
	"extra_data",
}

// Record is the flat wire form of an Event: keys match the storage columns
// and nullable columns are pointers so NULL round-trips as JSON null.
type Record struct {
	EventID     string          `json:"event_id"`
	EventType   EventType       `json:"event_type"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	ResourceID  *string         `json:"resource_id"`
	UserID      *string         `json:"user_id"`
	Username    *string         `json:"username"`
	IPAddress   *string         `json:"ip_address"`
	Timestamp   string          `json:"timestamp"`
	ExtraData   json.RawMessage `json:"extra_data"`
}

// ToRecord flattens the event.
func (e Event) ToRecord() Record {
	return Record{
		EventID:     e.EventID,
		EventType:   e.EventType,
		Severity:    e.Severity,
		Description: e.Description,
		ResourceID:  NullString(e.ResourceID),
		UserID:      NullString(e.Actor.UserID),
		Username:    NullString(e.Actor.Username),
		IPAddress:   NullString(e.Actor.IPAddress),
		Timestamp:   FormatTimestamp(e.Timestamp),
		ExtraData:   e.ExtraData,
	}
}

// ToEvent rebuilds an Event from its wire form.
func (r Record) ToEvent() (Event, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Event{}, err
	}
	if r.EventID == "" {
		return Event{}, fmt.Errorf("record without event_id")
	}
	var extra json.RawMessage
	if len(r.ExtraData) > 0 && string(r.ExtraData) != "null" {
		extra = append(json.RawMessage(nil), r.ExtraData...)
	}
	return Event{
		EventID:     r.EventID,
		EventType:   r.EventType,
		Severity:    r.Severity,
		Description: r.Description,
		ResourceID:  deref(r.ResourceID),
		Actor: Actor{
			UserID:    deref(r.UserID),
			Username:  deref(r.Username),
			IPAddress: deref(r.IPAddress),
		},
		Timestamp: ts,
		ExtraData: extra,
	}, nil
}

// NullString maps "" to nil.
func NullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
