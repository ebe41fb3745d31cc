// Package logger is the audit write path: it turns domain actions into
// immutable audit events and hands them to the event store.
//
// Writes are synchronous. A failed write is returned to the caller, counted,
// and reported on the operational slog channel, which is separate from the
// audit trail itself. Callers log-and-continue: the clinical action that
// triggered the event must not fail because auditing did.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/sentinel"
)

// Logger records audit events.
type Logger struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	clock   *audit.MonotonicClock
}

var _ audit.Recorder = (*Logger)(nil)

// Option configures the Logger.
type Option func(*Logger)

// WithLogger sets the operational logger that receives write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithClock replaces the wall clock. Timestamps stay strictly increasing
// even if now does not.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.clock = audit.NewMonotonicClock(now)
	}
}

// New creates an audit logger over store. The store is shared; the logger
// does no locking of its own around it.
func New(store audit.Store, opts ...Option) *Logger {
	l := &Logger{
		store:  store,
		logger: slog.Default(),
		clock:  audit.NewMonotonicClock(nil),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stamps the entry and appends it. It returns the new event ID.
func (l *Logger) Record(ctx context.Context, entry audit.Entry) (string, error) {
	start := time.Now()

	event, err := l.build(entry)
	if err != nil {
		l.reportFailure(ctx, entry, err)
		return "", err
	}

	id, err := l.store.Append(ctx, event)
	if err != nil {
		l.reportFailure(ctx, entry, err)
		return "", fmt.Errorf("record %s: %w", entry.EventType, err)
	}

	l.metrics.observeWrite(time.Since(start).Seconds())
	l.metrics.incRecorded(string(entry.EventType))
	return id, nil
}

func (l *Logger) build(entry audit.Entry) (audit.Event, error) {
	if !entry.EventType.Known() {
		return audit.Event{}, fmt.Errorf("%w: unknown event type %q", sentinel.ErrInvalidEvent, entry.EventType)
	}
	if !entry.Severity.Valid() {
		return audit.Event{}, fmt.Errorf("%w: unknown severity %q", sentinel.ErrInvalidEvent, entry.Severity)
	}
	extra, err := audit.EncodePayload(entry.Payload)
	if err != nil {
		return audit.Event{}, fmt.Errorf("%w: %w", sentinel.ErrInvalidEvent, err)
	}

	id := entry.EventID
	if id == "" {
		id = audit.NewEventID()
	}
	return audit.Event{
		EventID:     id,
		EventType:   entry.EventType,
		Severity:    entry.Severity,
		Description: entry.Description,
		ResourceID:  entry.ResourceID,
		Actor:       entry.Actor.Normalized(),
		Timestamp:   l.clock.Next(),
		ExtraData:   extra,
	}, nil
}

func (l *Logger) reportFailure(ctx context.Context, entry audit.Entry, err error) {
	l.metrics.incWriteFailure(string(entry.EventType), err)
	l.logger.ErrorContext(ctx, "audit event not persisted",
		"event_type", entry.EventType,
		"severity", entry.Severity,
		"resource_id", entry.ResourceID,
		"user_id", entry.Actor.UserID,
		"error", err,
	)
}

// LogEvent records an arbitrary event. extra may be nil, a typed payload, a
// map, or raw JSON.
func (l *Logger) LogEvent(ctx context.Context, eventType audit.EventType, description string,
	severity audit.Severity, actor audit.Actor, extra any) (string, error) {
	return l.Record(ctx, audit.Entry{
		EventType:   eventType,
		Severity:    severity,
		Description: description,
		Actor:       actor,
		Payload:     extra,
	})
}
