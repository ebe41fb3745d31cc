// Package worker moves audit writes off latency-sensitive paths. Entries are
// queued on a bounded channel and recorded by a single background goroutine.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/sentinel"
)

// Metrics tracks the queue.
type Metrics struct {
	Dropped  prometheus.Counter
	Failures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "clinicaudit_worker_dropped_total",
			Help: "Audit entries rejected because the worker queue was full or stopped",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "clinicaudit_worker_record_failures_total",
			Help: "Queued audit entries that failed to persist",
		}),
	}
}

// Worker implements audit.Recorder asynchronously on top of a synchronous
// Recorder (normally the audit logger).
type Worker struct {
	next    audit.Recorder
	inbox   chan audit.Entry
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	stopped bool
}

var _ audit.Recorder = (*Worker)(nil)

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker creates a worker with a queue of size buffer.
func NewWorker(next audit.Recorder, buffer int, opts ...Option) *Worker {
	if buffer <= 0 {
		buffer = 1024
	}
	w := &Worker{
		next:   next,
		inbox:  make(chan audit.Entry, buffer),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit queues entry without blocking and returns the ID the event will be
// stored under. A full or stopped queue returns sentinel.ErrQueueFull.
func (w *Worker) Submit(entry audit.Entry) (string, error) {
	if entry.EventID == "" {
		entry.EventID = audit.NewEventID()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.drop(entry, "stopped")
		return "", fmt.Errorf("submit %s: worker stopped: %w", entry.EventType, sentinel.ErrQueueFull)
	}
	select {
	case w.inbox <- entry:
		return entry.EventID, nil
	default:
		w.drop(entry, "full")
		return "", fmt.Errorf("submit %s: %w", entry.EventType, sentinel.ErrQueueFull)
	}
}

// Record satisfies audit.Recorder. The context is not carried into the
// background write.
func (w *Worker) Record(_ context.Context, entry audit.Entry) (string, error) {
	return w.Submit(entry)
}

// Len reports queued entries.
func (w *Worker) Len() int {
	return len(w.inbox)
}

// Run records queued entries until ctx is done, then stops accepting new
// ones and drains what is already queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.stop()
			w.drain(context.WithoutCancel(ctx))
			return nil
		case entry := <-w.inbox:
			w.record(ctx, entry)
		}
	}
}

func (w *Worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case entry := <-w.inbox:
			w.record(ctx, entry)
		default:
			return
		}
	}
}

func (w *Worker) record(ctx context.Context, entry audit.Entry) {
	if _, err := w.next.Record(ctx, entry); err != nil {
		if w.metrics != nil {
			w.metrics.Failures.Inc()
		}
		w.logger.ErrorContext(ctx, "queued audit event not persisted",
			"event_id", entry.EventID,
			"event_type", entry.EventType,
			"error", err,
		)
	}
}

func (w *Worker) drop(entry audit.Entry, reason string) {
	if w.metrics != nil {
		w.metrics.Dropped.Inc()
	}
	w.logger.Warn("audit entry dropped",
		"event_type", entry.EventType,
		"reason", reason,
	)
}
