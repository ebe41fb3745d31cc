package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/audit/export"
)

// Query returns one page of matching events in timestamp order.
func (l *Logger) Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	return l.store.Query(ctx, filter)
}

// Statistics aggregates events in [from, to]. Zero bounds leave that side
// open.
func (l *Logger) Statistics(ctx context.Context, from, to time.Time) (audit.Statistics, error) {
	return l.store.Stats(ctx, audit.Filter{From: from, To: to})
}

// ExportResult describes a finished export.
type ExportResult struct {
	Path        string        `json:"path"`
	Format      export.Format `json:"format"`
	RecordCount int           `json:"record_count"`
	// EventID is the DATA_EXPORT event; empty if that event could not be
	// recorded.
	EventID string `json:"event_id,omitempty"`
}

// Export writes matching events to path atomically and then records a
// DATA_EXPORT event attributed to actor. On failure nothing is written.
func (l *Logger) Export(ctx context.Context, path string, format export.Format, filter audit.Filter, actor audit.Actor) (ExportResult, error) {
	if err := filter.Validate(); err != nil {
		return ExportResult{}, err
	}
	n, err := export.ToFile(ctx, l.store, path, format, filter)
	if err != nil {
		l.metrics.incExport(string(format), "failure")
		l.logger.ErrorContext(ctx, "audit export failed",
			"path", path,
			"format", format,
			"error", err,
		)
		return ExportResult{}, fmt.Errorf("export failed: %w", err)
	}
	l.metrics.incExport(string(format), "success")

	result := ExportResult{Path: path, Format: format, RecordCount: n}
	// A failure here is already reported by Record; the file is valid.
	result.EventID, _ = l.LogDataExport(ctx, string(format), path, n, actor)
	return result, nil
}

// PurgeResult describes a retention run.
type PurgeResult struct {
	Cutoff   time.Time `json:"cutoff"`
	Archive  string    `json:"archive"`
	Archived int       `json:"archived"`
	Purged   int64     `json:"purged"`
	EventID  string    `json:"event_id,omitempty"`
}

// ArchiveAndPurge exports every event older than cutoff to archivePath and
// only then deletes them, recording a DATA_PURGE event. Events are never
// deleted without a successful archive.
func (l *Logger) ArchiveAndPurge(ctx context.Context, cutoff time.Time, archivePath string, format export.Format, actor audit.Actor) (PurgeResult, error) {
	if archivePath == "" {
		return PurgeResult{}, errors.New("archive path required before purging audit events")
	}
	older := audit.Filter{To: cutoff.Add(-time.Nanosecond)}

	archived, err := export.ToFile(ctx, l.store, archivePath, format, older)
	if err != nil {
		l.metrics.incExport(string(format), "failure")
		l.logger.ErrorContext(ctx, "audit archive failed, nothing purged",
			"archive", archivePath,
			"cutoff", audit.FormatTimestamp(cutoff),
			"error", err,
		)
		return PurgeResult{}, fmt.Errorf("archive before purge: %w", err)
	}
	l.metrics.incExport(string(format), "success")

	// On a transactional store the purge and its DATA_PURGE record commit
	// together; elsewhere the record follows the purge.
	var (
		purged  int64
		eventID string
	)
	err = l.atomically(ctx, func(ctx context.Context) error {
		n, err := l.store.PurgeBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		purged = n
		eventID, err = l.Record(ctx, audit.DataPurge(audit.FormatTimestamp(cutoff), archivePath, n, actor))
		if err != nil && l.transactional() {
			return err
		}
		return nil
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "audit purge failed after archive",
			"archive", archivePath,
			"error", err,
		)
		return PurgeResult{}, fmt.Errorf("purge audit events: %w", err)
	}
	l.metrics.addPurged(purged)
	if purged != int64(archived) {
		l.logger.WarnContext(ctx, "purged count differs from archived count",
			"archived", archived,
			"purged", purged,
		)
	}

	return PurgeResult{
		Cutoff:   cutoff,
		Archive:  archivePath,
		Archived: archived,
		Purged:   purged,
		EventID:  eventID,
	}, nil
}

func (l *Logger) transactional() bool {
	_, ok := l.store.(audit.Transactor)
	return ok
}

func (l *Logger) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	if t, ok := l.store.(audit.Transactor); ok {
		return t.WithinTx(ctx, fn)
	}
	return fn(ctx)
}
