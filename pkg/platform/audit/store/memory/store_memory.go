package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/sentinel"
)

// InMemoryStore keeps events in a slice ordered by timestamp. It backs unit
// tests and throwaway runs (AUDIT_STORE_DRIVER=memory); nothing survives a
// restart.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	// ids holds every event ID ever appended, purged ones included.
	ids map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.EventID == "" {
		event.EventID = audit.NewEventID()
	}
	if _, dup := s.ids[event.EventID]; dup {
		return "", fmt.Errorf("append %s: %w", event.EventID, sentinel.ErrDuplicateEvent)
	}
	event.ExtraData = append([]byte(nil), event.ExtraData...)
	if len(event.ExtraData) == 0 {
		event.ExtraData = nil
	}

	// Keep the slice sorted; appends are almost always at the tail.
	i := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Timestamp.After(event.Timestamp)
	})
	s.events = append(s.events, audit.Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = event
	s.ids[event.EventID] = struct{}{}
	return event.EventID, nil
}

func (s *InMemoryStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter.Limit = filter.PageSize()
	out := []audit.Event{}
	err := s.Stream(ctx, filter, func(e audit.Event) error {
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InMemoryStore) Stream(ctx context.Context, filter audit.Filter, fn func(audit.Event) error) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := make([]audit.Event, len(s.events))
	copy(snapshot, s.events)
	s.mu.RUnlock()

	skipped, emitted := 0, 0
	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filter.Matches(e) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if filter.Limit > 0 && emitted >= filter.Limit {
			break
		}
		if err := fn(e); err != nil {
			return err
		}
		emitted++
	}
	return nil
}

func (s *InMemoryStore) Stats(ctx context.Context, filter audit.Filter) (audit.Statistics, error) {
	filter.Limit, filter.Offset = 0, 0
	stats := audit.NewStatistics()
	err := s.Stream(ctx, filter, func(e audit.Event) error {
		stats.Add(e)
		return nil
	})
	if err != nil {
		return audit.Statistics{}, err
	}
	return stats, nil
}

func (s *InMemoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var purged int64
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return purged, nil
}

// Len reports how many events are held.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *InMemoryStore) Close() error { return nil }
