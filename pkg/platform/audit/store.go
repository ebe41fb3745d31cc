package audit

import (
	"context"
	"time"
)

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks Store

// Store is the append-only event store. It exclusively owns the backing file
// or database and serializes concurrent writers internally; callers never
// lock around it.
type Store interface {
	// Append inserts one event and returns its ID, assigning one when the
	// event has none. It never updates or deletes existing rows.
	Append(ctx context.Context, event Event) (string, error)
	// Query returns matching events ordered by timestamp ascending, one page
	// at a time. No match is an empty slice, not an error.
	Query(ctx context.Context, filter Filter) ([]Event, error)
	// Stream calls fn for every matching event in timestamp order without
	// materializing the result set. Limit/Offset apply only when set.
	Stream(ctx context.Context, filter Filter, fn func(Event) error) error
	// Stats aggregates matching events; Limit/Offset are ignored.
	Stats(ctx context.Context, filter Filter) (Statistics, error)
	// PurgeBefore deletes events strictly older than cutoff. It exists only
	// for explicit retention runs and returns the number of rows removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Recorder turns an Entry into a stored Event. The synchronous Logger and the
// async Worker both implement it so callers pick the dispatch mode.
type Recorder interface {
	Record(ctx context.Context, entry Entry) (string, error)
}

// Transactor is implemented by stores that can group writes atomically.
// Append and PurgeBefore calls made with the context fn receives commit or
// roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
