// Package sqlstore is the durable audit event store. SQLite is the default
// single-file deployment; PostgreSQL is supported for shared installations.
// Both use the same schema: one audit_events table whose columns match the
// export format.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/sentinel"
	txcontext "clinicaudit/pkg/platform/tx"
)

const selectColumns = `event_id, event_type, severity, description, resource_id,
	user_id, username, ip_address, timestamp, extra_data`

// Config describes how to reach the backing database.
type Config struct {
	Dialect Dialect
	// DSN is a file path for SQLite (":memory:" allowed) or a connection
	// URL for PostgreSQL.
	DSN             string
	MaxWriteRetries int
	RetryBackoff    time.Duration
	BusyTimeout     time.Duration
}

// Store implements audit.Store over database/sql. All writes go through a
// single writer mutex so concurrent appends never race inside the driver;
// reads use the connection pool.
type Store struct {
	db      *sql.DB
	dialect Dialect

	writeMu    sync.Mutex
	maxRetries int
	backoff    time.Duration
	tracer     trace.Tracer
}

var _ audit.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithMaxWriteRetries sets how many times a contended write is retried
// before ErrWriteConflict.
func WithMaxWriteRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between write retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		s.tracer = t
	}
}

// New wraps an already-open database. The schema must exist (see Migrate).
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:         db,
		dialect:    dialect,
		maxRetries: 3,
		backoff:    20 * time.Millisecond,
		tracer:     otel.Tracer("clinicaudit/audit/sqlstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects, applies migrations and returns a store shared by the whole
// process. Opening the same database again is safe.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	dsn := cfg.DSN
	if cfg.Dialect == DialectSQLite {
		dsn = sqliteDSN(cfg.DSN, cfg.BusyTimeout)
	}
	db, err := sql.Open(string(cfg.Dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w: %w", sentinel.ErrStorageUnavailable, err)
	}
	configurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open audit store %s: %w: %w", cfg.Dialect, sentinel.ErrStorageUnavailable, err)
	}
	if err := Migrate(db, cfg.Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.MaxWriteRetries > 0 {
		opts = append([]Option{WithMaxWriteRetries(cfg.MaxWriteRetries)}, opts...)
	}
	if cfg.RetryBackoff > 0 {
		opts = append([]Option{WithRetryBackoff(cfg.RetryBackoff)}, opts...)
	}
	return New(db, cfg.Dialect, opts...), nil
}

func sqliteDSN(path string, busyTimeout time.Duration) string {
	if path == ":memory:" {
		return path
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	return fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path, busyTimeout.Milliseconds())
}

func configurePool(db *sql.DB, cfg Config) {
	switch {
	case cfg.Dialect == DialectSQLite && cfg.DSN == ":memory:":
		// Every new connection would open a fresh, empty database.
		db.SetMaxOpenConns(1)
	case cfg.Dialect == DialectSQLite:
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
	default:
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(20)
	}
}

// Append inserts one event. Contended writes are retried with linear backoff;
// the row is either fully written or not at all.
func (s *Store) Append(ctx context.Context, event audit.Event) (string, error) {
	ctx, span := s.tracer.Start(ctx, "audit.store.append",
		trace.WithAttributes(attribute.String("audit.event_type", string(event.EventType))))
	defer span.End()

	if event.EventID == "" {
		event.EventID = audit.NewEventID()
	}

	query := fmt.Sprintf(`
		INSERT INTO audit_events (%s)
		VALUES (%s)
	`, selectColumns, s.placeholders(len(audit.Columns)))

	args := []any{
		event.EventID,
		string(event.EventType),
		string(event.Severity),
		event.Description,
		nullString(event.ResourceID),
		nullString(event.Actor.UserID),
		nullString(event.Actor.Username),
		nullString(event.Actor.IPAddress),
		audit.FormatTimestamp(event.Timestamp),
		nullString(string(event.ExtraData)),
	}

	// Inside WithinTx the caller already holds the writer lock and owns
	// retries.
	if tx, ok := txcontext.From(ctx); ok {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			err = appendErr(event.EventID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "append failed")
			return "", err
		}
		return event.EventID, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for attempt := 0; ; attempt++ {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return event.EventID, nil
		}

		switch {
		case isContention(err) && attempt < s.maxRetries:
			span.AddEvent("write contention, retrying", trace.WithAttributes(attribute.Int("attempt", attempt+1)))
			if werr := s.wait(ctx, attempt); werr != nil {
				err = fmt.Errorf("append audit event: %w: %w", sentinel.ErrWriteConflict, werr)
				break
			}
			continue
		case isContention(err):
			err = fmt.Errorf("append audit event after %d retries: %w: %w", attempt, sentinel.ErrWriteConflict, err)
		default:
			err = appendErr(event.EventID, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return "", err
	}
}

func appendErr(eventID string, err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("append audit event %s: %w", eventID, sentinel.ErrDuplicateEvent)
	case isContention(err):
		return fmt.Errorf("append audit event: %w: %w", sentinel.ErrWriteConflict, err)
	}
	return fmt.Errorf("append audit event: %w: %w", sentinel.ErrStorageUnavailable, err)
}

// WithinTx runs fn in one transaction. Append and PurgeBefore calls made with
// the context fn receives join it, so they commit or roll back together.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := txcontext.Run(ctx, s.db, fn); err != nil {
		if errors.Is(err, sentinel.ErrStorageUnavailable) || errors.Is(err, sentinel.ErrWriteConflict) ||
			errors.Is(err, sentinel.ErrDuplicateEvent) || errors.Is(err, sentinel.ErrInvalidEvent) {
			return err
		}
		return fmt.Errorf("audit transaction: %w: %w", sentinel.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(s.backoff * time.Duration(attempt+1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Query returns one page of matching events.
func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter.Limit = filter.PageSize()

	events := []audit.Event{}
	err := s.Stream(ctx, filter, func(e audit.Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Stream iterates matching rows one at a time.
func (s *Store) Stream(ctx context.Context, filter audit.Filter, fn func(audit.Event) error) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "audit.store.stream")
	defer span.End()

	b := s.where(filter)
	query := `SELECT ` + selectColumns + ` FROM audit_events` + b.clause() +
		` ORDER BY timestamp ASC, event_id ASC` + b.page(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("query audit events: %w: %w", sentinel.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate audit events: %w", err)
	}
	return nil
}

// Stats aggregates in the database with one grouped query.
func (s *Store) Stats(ctx context.Context, filter audit.Filter) (audit.Statistics, error) {
	filter.Limit, filter.Offset = 0, 0
	if err := filter.Validate(); err != nil {
		return audit.Statistics{}, err
	}
	ctx, span := s.tracer.Start(ctx, "audit.store.stats")
	defer span.End()

	b := s.where(filter)
	query := `
		SELECT event_type, severity, username, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM audit_events` + b.clause() + `
		GROUP BY event_type, severity, username`

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		span.RecordError(err)
		return audit.Statistics{}, fmt.Errorf("aggregate audit events: %w: %w", sentinel.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	stats := audit.NewStatistics()
	for rows.Next() {
		var (
			eventType, severity string
			username            sql.NullString
			count               int
			first, last         string
		)
		if err := rows.Scan(&eventType, &severity, &username, &count, &first, &last); err != nil {
			return audit.Statistics{}, fmt.Errorf("scan audit statistics: %w", err)
		}
		stats.TotalEvents += count
		stats.EventTypes[audit.EventType(eventType)] += count
		stats.Severities[audit.Severity(severity)] += count
		if username.Valid && username.String != "" {
			stats.Users[username.String] += count
		}
		if err := foldBounds(&stats, first, last); err != nil {
			return audit.Statistics{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return audit.Statistics{}, fmt.Errorf("iterate audit statistics: %w", err)
	}
	return stats, nil
}

func foldBounds(stats *audit.Statistics, first, last string) error {
	firstTS, err := audit.ParseTimestamp(first)
	if err != nil {
		return err
	}
	lastTS, err := audit.ParseTimestamp(last)
	if err != nil {
		return err
	}
	if stats.FirstEvent == nil || firstTS.Before(*stats.FirstEvent) {
		stats.FirstEvent = &firstTS
	}
	if stats.LastEvent == nil || lastTS.After(*stats.LastEvent) {
		stats.LastEvent = &lastTS
	}
	return nil
}

// PurgeBefore removes events older than cutoff. Only retention runs call it.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "audit.store.purge")
	defer span.End()

	query := `DELETE FROM audit_events WHERE timestamp < ` + s.dialect.bind(1)
	var (
		res sql.Result
		err error
	)
	if tx, ok := txcontext.From(ctx); ok {
		res, err = tx.ExecContext(ctx, query, audit.FormatTimestamp(cutoff))
	} else {
		s.writeMu.Lock()
		res, err = s.db.ExecContext(ctx, query, audit.FormatTimestamp(cutoff))
		s.writeMu.Unlock()
	}
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("purge audit events: %w: %w", sentinel.ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return n, nil
}

// PingContext checks that the database is reachable.
func (s *Store) PingContext(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit store: %w: %w", sentinel.ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = s.dialect.bind(i + 1)
	}
	return strings.Join(marks, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (audit.Event, error) {
	var (
		event                                  audit.Event
		eventType, severity, ts                string
		resourceID, userID, username, ip, xtra sql.NullString
	)
	err := row.Scan(
		&event.EventID,
		&eventType,
		&severity,
		&event.Description,
		&resourceID,
		&userID,
		&username,
		&ip,
		&ts,
		&xtra,
	)
	if err != nil {
		return audit.Event{}, fmt.Errorf("scan audit event: %w", err)
	}

	parsed, err := audit.ParseTimestamp(ts)
	if err != nil {
		return audit.Event{}, err
	}
	event.EventType = audit.EventType(eventType)
	event.Severity = audit.Severity(severity)
	event.ResourceID = resourceID.String
	event.Actor = audit.Actor{
		UserID:    userID.String,
		Username:  username.String,
		IPAddress: ip.String,
	}
	event.Timestamp = parsed
	if xtra.Valid && xtra.String != "" {
		event.ExtraData = json.RawMessage(xtra.String)
	}
	return event, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
