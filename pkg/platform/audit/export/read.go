package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	audit "clinicaudit/pkg/platform/audit"
)

// ReadJSON parses a JSON export back into events.
func ReadJSON(r io.Reader) ([]audit.Event, error) {
	var records []audit.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json export: %w", err)
	}
	events := make([]audit.Event, 0, len(records))
	for i, rec := range records {
		e, err := rec.ToEvent()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// ReadCSV parses a CSV export back into events. The header must match the
// export column order.
func ReadCSV(r io.Reader) ([]audit.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(audit.Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if !slices.Equal(header, audit.Columns) {
		return nil, fmt.Errorf("unexpected csv header %v", header)
	}

	events := []audit.Event{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		rec := audit.Record{
			EventID:     row[0],
			EventType:   audit.EventType(row[1]),
			Severity:    audit.Severity(row[2]),
			Description: row[3],
			ResourceID:  audit.NullString(row[4]),
			UserID:      audit.NullString(row[5]),
			Username:    audit.NullString(row[6]),
			IPAddress:   audit.NullString(row[7]),
			Timestamp:   row[8],
		}
		if row[9] != "" {
			if !json.Valid([]byte(row[9])) {
				return nil, fmt.Errorf("csv line %d: extra_data is not valid JSON", line)
			}
			rec.ExtraData = json.RawMessage(row[9])
		}
		e, err := rec.ToEvent()
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		events = append(events, e)
	}
}
