package audit

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicaudit/pkg/platform/sentinel"
)

func TestFilter_Validate(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("zero filter is valid", func(t *testing.T) {
		require.NoError(t, Filter{}.Validate())
	})

	t.Run("end before start is malformed", func(t *testing.T) {
		err := Filter{From: base, To: base.Add(-time.Hour)}.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrMalformedFilter))
	})

	t.Run("equal bounds are allowed", func(t *testing.T) {
		require.NoError(t, Filter{From: base, To: base}.Validate())
	})

	t.Run("unknown severity is malformed", func(t *testing.T) {
		err := Filter{Severities: []Severity{"LOUD"}}.Validate()
		assert.ErrorIs(t, err, sentinel.ErrMalformedFilter)
	})

	t.Run("negative offset is malformed", func(t *testing.T) {
		assert.ErrorIs(t, Filter{Offset: -1}.Validate(), sentinel.ErrMalformedFilter)
	})

	t.Run("limit above max page is malformed", func(t *testing.T) {
		assert.ErrorIs(t, Filter{Limit: MaxPageSize + 1}.Validate(), sentinel.ErrMalformedFilter)
	})
}

func TestFilter_PageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Filter{}.PageSize())
	assert.Equal(t, 25, Filter{Limit: 25}.PageSize())
}

func TestFilter_Matches(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Event{
		EventType:  EventPatientCreated,
		Severity:   SeverityInfo,
		ResourceID: "p123",
		Actor:      Actor{UserID: "u1", Username: "alice"},
		Timestamp:  ts,
	}

	assert.True(t, Filter{}.Matches(e))
	assert.True(t, Filter{EventTypes: []EventType{EventUserLogin, EventPatientCreated}}.Matches(e))
	assert.False(t, Filter{EventTypes: []EventType{EventUserLogin}}.Matches(e))
	assert.False(t, Filter{Severities: []Severity{SeverityCritical}}.Matches(e))
	assert.True(t, Filter{From: ts, To: ts}.Matches(e), "range bounds are inclusive")
	assert.False(t, Filter{From: ts.Add(time.Second)}.Matches(e))
	assert.False(t, Filter{ResourceID: "p999"}.Matches(e))
	assert.True(t, Filter{UserID: "u1", Username: "alice"}.Matches(e))
	assert.False(t, Filter{Username: "bob"}.Matches(e))
}

func TestParseEventTypeAndSeverity(t *testing.T) {
	et, err := ParseEventType(" patient_created ")
	require.NoError(t, err)
	assert.Equal(t, EventPatientCreated, et)

	_, err = ParseEventType("COFFEE_BREWED")
	assert.Error(t, err)

	sev, err := ParseSeverity("warning")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, sev)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err)
}

func TestActor_Normalized(t *testing.T) {
	assert.Equal(t, Actor{Username: SystemUsername}, Actor{}.Normalized())
	assert.Equal(t, Actor{UserID: "u1", IPAddress: "10.0.0.1"},
		Actor{UserID: " u1 ", IPAddress: "10.0.0.1"}.Normalized())
}

func TestUserLoginEntry(t *testing.T) {
	actor := Actor{UserID: "u1", Username: "alice", IPAddress: "127.0.0.1"}

	ok := UserLogin("alice", true, actor, "")
	assert.Equal(t, EventUserLogin, ok.EventType)
	assert.Equal(t, SeverityInfo, ok.Severity)
	assert.Equal(t, LoginPayload{Username: "alice", Success: true}, ok.Payload)

	failed := UserLogin("alice", false, actor, "bad password")
	assert.Equal(t, EventUserLogin, failed.EventType)
	assert.Equal(t, SeverityWarning, failed.Severity)
	assert.Equal(t, LoginPayload{Username: "alice", Success: false, ErrorMessage: "bad password"}, failed.Payload)
}

func TestPatientUpdatedEntry_ChangedFields(t *testing.T) {
	e := PatientUpdated("p1",
		map[string]any{"lastname": "Mustermann", "age": 40, "phone": "123"},
		map[string]any{"lastname": "Musterfrau", "age": 40, "email": "x@y.z"},
		Actor{Username: "dr"},
	)
	payload, ok := e.Payload.(PatientPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"email", "lastname", "phone"}, payload.Changed)
	assert.Equal(t, "p1", e.ResourceID)
}

func TestEncodeDecodePayload(t *testing.T) {
	t.Run("nil payload stays NULL", func(t *testing.T) {
		raw, err := EncodePayload(nil)
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("invalid raw JSON is rejected", func(t *testing.T) {
		_, err := EncodePayload(json.RawMessage(`{"a":`))
		assert.Error(t, err)
	})

	t.Run("login payload decodes to typed variant", func(t *testing.T) {
		raw, err := EncodePayload(LoginPayload{Username: "alice", Success: false, ErrorMessage: "bad password"})
		require.NoError(t, err)
		decoded, err := Event{EventType: EventUserLogin, ExtraData: raw}.DecodePayload()
		require.NoError(t, err)
		assert.Equal(t, &LoginPayload{Username: "alice", Success: false, ErrorMessage: "bad password"}, decoded)
	})

	t.Run("unknown type falls back to generic map", func(t *testing.T) {
		decoded, err := Event{EventType: "LEGACY_THING", ExtraData: json.RawMessage(`{"k":"v"}`)}.DecodePayload()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"k": "v"}, decoded)
	})
}

func TestRecordRoundTrip(t *testing.T) {
	e := Event{
		EventID:     "e1",
		EventType:   EventPatientCreated,
		Severity:    SeverityInfo,
		Description: "Patient p123 created",
		ResourceID:  "p123",
		Actor:       Actor{Username: "alice"},
		Timestamp:   time.Date(2025, 3, 1, 12, 0, 0, 120, time.UTC),
		ExtraData:   json.RawMessage(`{"patient_id":"p123"}`),
	}
	rec := e.ToRecord()
	assert.Nil(t, rec.UserID)
	assert.Equal(t, "2025-03-01T12:00:00.000000120Z", rec.Timestamp)

	back, err := rec.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, e, back)
}

func TestTimestampLayout_SortsLexically(t *testing.T) {
	a := FormatTimestamp(time.Date(2025, 1, 1, 0, 0, 5, 100_000_000, time.UTC))
	b := FormatTimestamp(time.Date(2025, 1, 1, 0, 0, 5, 120_000_000, time.UTC))
	assert.Less(t, a, b)
}

func TestMonotonicClock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMonotonicClock(func() time.Time { return fixed })

	first := clock.Next()
	second := clock.Next()
	assert.True(t, second.After(first), "same wall time must still advance")

	t.Run("concurrent callers never share a timestamp", func(t *testing.T) {
		clock := NewMonotonicClock(nil)
		const goroutines = 20
		const perGoroutine = 50
		results := make(chan time.Time, goroutines*perGoroutine)

		var wg sync.WaitGroup
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perGoroutine {
					results <- clock.Next()
				}
			}()
		}
		wg.Wait()
		close(results)

		seen := make(map[time.Time]struct{})
		for ts := range results {
			_, dup := seen[ts]
			require.False(t, dup)
			seen[ts] = struct{}{}
		}
	})
}

func TestStatistics_Add(t *testing.T) {
	stats := NewStatistics()
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stats.Add(Event{EventType: EventUserLogin, Severity: SeverityInfo, Actor: Actor{Username: "alice"}, Timestamp: t1})
	stats.Add(Event{EventType: EventUserLogin, Severity: SeverityWarning, Actor: Actor{Username: "alice"}, Timestamp: t1.Add(time.Hour)})

	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.EventTypes[EventUserLogin])
	assert.Equal(t, 1, stats.Severities[SeverityWarning])
	assert.Equal(t, 2, stats.Users["alice"])
	assert.Equal(t, t1, *stats.FirstEvent)
	assert.Equal(t, t1.Add(time.Hour), *stats.LastEvent)
}
