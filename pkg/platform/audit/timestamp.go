package audit

import (
	"fmt"
	"time"
)

// TimestampLayout is the persisted ISO-8601 form. Fixed-width nanoseconds keep
// lexical order equal to chronological order, which range filters rely on
// when the column is plain text.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp reads a persisted timestamp. RFC 3339 input is accepted too
// so hand-edited or foreign exports still load.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse audit timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
