package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/audit/store/memory"
	"clinicaudit/pkg/platform/sentinel"
)

func seededStore(t *testing.T) *memory.InMemoryStore {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()

	events := []audit.Event{
		{
			EventID:     "e1",
			EventType:   audit.EventUserLogin,
			Severity:    audit.SeverityInfo,
			Description: "User alice logged in successfully",
			ResourceID:  "u1",
			Actor:       audit.Actor{UserID: "u1", Username: "alice", IPAddress: "192.168.1.20"},
			Timestamp:   base,
			ExtraData:   json.RawMessage(`{"username":"alice","success":true}`),
		},
		{
			EventID:     "e2",
			EventType:   audit.EventPatientCreated,
			Severity:    audit.SeverityInfo,
			Description: "Patient p123, with \"quotes\", created",
			ResourceID:  "p123",
			Actor:       audit.Actor{UserID: "u1", Username: "alice"},
			Timestamp:   base.Add(time.Second),
			ExtraData:   json.RawMessage(`{"patient_id":"p123","data":{"name":"Doe, Jane"}}`),
		},
		{
			EventID:     "e3",
			EventType:   audit.EventSystem,
			Severity:    audit.SeverityWarning,
			Description: "nightly job\nfinished late",
			Timestamp:   base.Add(2 * time.Second),
		},
	}
	for _, e := range events {
		_, err := store.Append(ctx, e)
		require.NoError(t, err)
	}
	return store
}

func assertSameEvents(t *testing.T, want, got []audit.Event) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].EventID, got[i].EventID)
		assert.Equal(t, want[i].EventType, got[i].EventType)
		assert.Equal(t, want[i].Severity, got[i].Severity)
		assert.Equal(t, want[i].Description, got[i].Description)
		assert.Equal(t, want[i].ResourceID, got[i].ResourceID)
		assert.Equal(t, want[i].Actor, got[i].Actor)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		if want[i].ExtraData == nil {
			assert.Nil(t, got[i].ExtraData)
		} else {
			assert.JSONEq(t, string(want[i].ExtraData), string(got[i].ExtraData))
		}
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	want, err := store.Query(ctx, audit.Filter{})
	require.NoError(t, err)

	for _, tc := range []struct {
		format Format
		read   func(r *bytes.Reader) ([]audit.Event, error)
	}{
		{FormatJSON, func(r *bytes.Reader) ([]audit.Event, error) { return ReadJSON(r) }},
		{FormatCSV, func(r *bytes.Reader) ([]audit.Event, error) { return ReadCSV(r) }},
	} {
		t.Run(string(tc.format), func(t *testing.T) {
			var buf bytes.Buffer
			n, err := Write(ctx, &buf, store, tc.format, audit.Filter{})
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			got, err := tc.read(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assertSameEvents(t, want, got)
		})
	}
}

func TestJSONShape(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	_, err := Write(ctx, &buf, seededStore(t), FormatJSON, audit.Filter{})
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 3)

	for _, col := range audit.Columns {
		assert.Contains(t, rows[0], col)
	}
	extra, ok := rows[0]["extra_data"].(map[string]any)
	require.True(t, ok, "extra_data is nested JSON")
	assert.Equal(t, true, extra["success"])
	assert.Nil(t, rows[2]["resource_id"])
	assert.Nil(t, rows[2]["extra_data"])
}

func TestCSVHeader(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, seededStore(t), FormatCSV, audit.Filter{})
	require.NoError(t, err)
	first, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, "event_id,event_type,severity,description,resource_id,user_id,username,ip_address,timestamp,extra_data", first)
}

func TestEmptyExport(t *testing.T) {
	ctx := context.Background()
	empty := memory.NewInMemoryStore()

	var buf bytes.Buffer
	n, err := Write(ctx, &buf, empty, FormatJSON, audit.Filter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilteredExport(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(context.Background(), &buf, seededStore(t), FormatJSON,
		audit.Filter{EventTypes: []audit.EventType{audit.EventPatientCreated}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestToFile(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	t.Run("writes atomically and leaves no temp files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "audit.csv")
		n, err := ToFile(ctx, store, path, FormatCSV, audit.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "audit.csv", entries[0].Name())
	})

	t.Run("unwritable destination is an export IO error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "no-such-dir", "audit.json")
		_, err := ToFile(ctx, store, path, FormatJSON, audit.Filter{})
		assert.ErrorIs(t, err, sentinel.ErrExportIO)
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("source failure leaves nothing behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "audit.json")
		boom := errors.New("storage gone")
		_, err := ToFile(ctx, failingSource{err: boom}, path, FormatJSON, audit.Filter{})
		assert.ErrorIs(t, err, boom)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("existing file is never replaced", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "audit-archive.json")
		require.NoError(t, os.WriteFile(path, []byte("[]\n"), 0o600))

		_, err := ToFile(ctx, store, path, FormatJSON, audit.Filter{})
		require.ErrorIs(t, err, sentinel.ErrExportExists)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "[]\n", string(data))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "no temp file left behind")
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestReadCSV_RejectsWrongHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b,c,d,e,f,g,h,i,j\n"))
	assert.Error(t, err)
}

type failingSource struct{ err error }

func (f failingSource) Stream(context.Context, audit.Filter, func(audit.Event) error) error {
	return f.err
}
