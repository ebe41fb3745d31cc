// Package retention schedules archive-and-purge runs over the audit trail.
// Retention is opt-in: a Runner with zero Days is never started.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/audit/export"
	"clinicaudit/pkg/platform/audit/logger"
)

// Purger archives then deletes events older than a cutoff.
type Purger interface {
	ArchiveAndPurge(ctx context.Context, cutoff time.Time, archivePath string, format export.Format, actor audit.Actor) (logger.PurgeResult, error)
}

// Runner computes the cutoff from the retention window and names the
// archive file after it.
type Runner struct {
	purger     Purger
	days       int
	archiveDir string
	format     export.Format
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithFormat(f export.Format) Option {
	return func(r *Runner) { r.format = f }
}

func WithNow(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(purger Purger, days int, archiveDir string, opts ...Option) *Runner {
	r := &Runner{
		purger:     purger,
		days:       days,
		archiveDir: archiveDir,
		format:     export.FormatJSON,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether a retention window is configured.
func (r *Runner) Enabled() bool {
	return r.days > 0
}

// Cutoff is the instant before which events are out of the window.
func (r *Runner) Cutoff() time.Time {
	return r.now().UTC().AddDate(0, 0, -r.days)
}

// RunOnce archives and purges everything older than the window. actor is the
// operator for manual runs; scheduled runs pass the zero Actor, which the
// audit logger attributes to the system.
func (r *Runner) RunOnce(ctx context.Context, actor audit.Actor) (logger.PurgeResult, error) {
	if !r.Enabled() {
		return logger.PurgeResult{}, fmt.Errorf("retention disabled")
	}
	if err := os.MkdirAll(r.archiveDir, 0o750); err != nil {
		return logger.PurgeResult{}, fmt.Errorf("create archive dir: %w", err)
	}
	cutoff := r.Cutoff()
	name := fmt.Sprintf("audit-archive-%s.%s", cutoff.Format("20060102T150405Z"), r.format)
	return r.purger.ArchiveAndPurge(ctx, cutoff, filepath.Join(r.archiveDir, name), r.format, actor)
}

// Run executes RunOnce every interval until ctx is done. Failures are logged
// and retried on the next tick.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := r.RunOnce(ctx, audit.Actor{})
			if err != nil {
				r.logger.ErrorContext(ctx, "scheduled retention run failed", "error", err)
				continue
			}
			r.logger.InfoContext(ctx, "retention run complete",
				"cutoff", audit.FormatTimestamp(res.Cutoff),
				"archive", res.Archive,
				"archived", res.Archived,
				"purged", res.Purged,
			)
		}
	}
}
