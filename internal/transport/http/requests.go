package httptransport

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/audit/export"
	"clinicaudit/pkg/platform/sentinel"
	pkgstrings "clinicaudit/pkg/platform/strings"
)

// RecordEventRequest is the body of POST /v1/audit/events. The actor is
// always the authenticated caller, never taken from the body.
type RecordEventRequest struct {
	EventType   string          `json:"event_type"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	ResourceID  string          `json:"resource_id"`
	ExtraData   json.RawMessage `json:"extra_data"`

	eventType audit.EventType
	severity  audit.Severity
}

func (r *RecordEventRequest) Validate() error {
	t, err := audit.ParseEventType(r.EventType)
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrBadRequest, err)
	}
	r.eventType = t

	r.severity = audit.SeverityInfo
	if strings.TrimSpace(r.Severity) != "" {
		sev, err := audit.ParseSeverity(r.Severity)
		if err != nil {
			return fmt.Errorf("%w: %w", sentinel.ErrBadRequest, err)
		}
		r.severity = sev
	}

	r.Description = strings.TrimSpace(r.Description)
	if r.Description == "" {
		return fmt.Errorf("%w: description is required", sentinel.ErrBadRequest)
	}
	if len(r.ExtraData) > 0 && string(r.ExtraData) != "null" && !json.Valid(r.ExtraData) {
		return fmt.Errorf("%w: extra_data is not valid JSON", sentinel.ErrBadRequest)
	}
	return nil
}

func (r *RecordEventRequest) entry(actor audit.Actor) audit.Entry {
	var payload any
	if len(r.ExtraData) > 0 && string(r.ExtraData) != "null" {
		payload = r.ExtraData
	}
	return audit.Entry{
		EventType:   r.eventType,
		Severity:    r.severity,
		Description: r.Description,
		ResourceID:  strings.TrimSpace(r.ResourceID),
		Actor:       actor,
		Payload:     payload,
	}
}

type RecordEventResponse struct {
	EventID string `json:"event_id"`
}

// ExportRequest is the body of POST /v1/audit/exports. Filename is a bare
// file name inside the configured export directory.
type ExportRequest struct {
	Format     string     `json:"format"`
	Filename   string     `json:"filename"`
	EventTypes []string   `json:"event_types"`
	Severities []string   `json:"severities"`
	From       *time.Time `json:"from"`
	To         *time.Time `json:"to"`
	ResourceID string     `json:"resource_id"`
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`

	format export.Format
	filter audit.Filter
}

func (r *ExportRequest) Validate() error {
	f, err := export.ParseFormat(r.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrBadRequest, err)
	}
	r.format = f

	r.Filename = strings.TrimSpace(r.Filename)
	if r.Filename != "" {
		if r.Filename != filepath.Base(r.Filename) || strings.HasPrefix(r.Filename, ".") {
			return fmt.Errorf("%w: filename must be a plain file name", sentinel.ErrBadRequest)
		}
	}

	filter := audit.Filter{
		ResourceID: strings.TrimSpace(r.ResourceID),
		UserID:     strings.TrimSpace(r.UserID),
		Username:   strings.TrimSpace(r.Username),
	}
	if filter.EventTypes, err = parseEventTypes(r.EventTypes); err != nil {
		return err
	}
	if filter.Severities, err = parseSeverities(r.Severities); err != nil {
		return err
	}
	if r.From != nil {
		filter.From = r.From.UTC()
	}
	if r.To != nil {
		filter.To = r.To.UTC()
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	r.filter = filter
	return nil
}

// fileName returns the requested name or a timestamped default.
func (r *ExportRequest) fileName(now time.Time) string {
	if r.Filename != "" {
		return r.Filename
	}
	return fmt.Sprintf("audit-export-%s.%s", now.UTC().Format("20060102T150405Z"), r.format)
}

// parseQueryFilter reads GET /v1/audit/events parameters. List parameters
// accept repeats and comma-separated values.
func parseQueryFilter(q url.Values) (audit.Filter, error) {
	var (
		f   audit.Filter
		err error
	)
	if f.EventTypes, err = parseEventTypes(q["event_type"]); err != nil {
		return f, err
	}
	if f.Severities, err = parseSeverities(q["severity"]); err != nil {
		return f, err
	}
	if f.From, err = parseTime(q.Get("from"), false); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q.Get("to"), true); err != nil {
		return f, err
	}
	f.ResourceID = strings.TrimSpace(q.Get("resource_id"))
	f.UserID = strings.TrimSpace(q.Get("user_id"))
	f.Username = strings.TrimSpace(q.Get("username"))
	if f.Limit, err = parseInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = parseInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func parseEventTypes(values []string) ([]audit.EventType, error) {
	values = pkgstrings.SplitCodes(values)
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]audit.EventType, 0, len(values))
	for _, v := range values {
		t, err := audit.ParseEventType(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", sentinel.ErrMalformedFilter, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseSeverities(values []string) ([]audit.Severity, error) {
	values = pkgstrings.SplitCodes(values)
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]audit.Severity, 0, len(values))
	for _, v := range values {
		s, err := audit.ParseSeverity(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", sentinel.ErrMalformedFilter, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// parseTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q", sentinel.ErrMalformedFilter, s)
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return d, nil
}

func parseInt(s, name string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", sentinel.ErrMalformedFilter, name)
	}
	return n, nil
}

type QueryResponse struct {
	Events []audit.Record `json:"events"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func newQueryResponse(events []audit.Event, f audit.Filter) QueryResponse {
	records := make([]audit.Record, len(events))
	for i, e := range events {
		records[i] = e.ToRecord()
	}
	return QueryResponse{Events: records, Count: len(records), Limit: f.PageSize(), Offset: f.Offset}
}
