// Package export writes audit events to JSON or CSV files and reads them back.
//
// JSON output is a top-level array of flat objects whose keys are the storage
// columns; extra_data stays nested JSON. CSV output has the same columns with
// extra_data as JSON text in a single field.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/sentinel"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat is case-insensitive. An empty string means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Source is the part of audit.Store an export reads from.
type Source interface {
	Stream(ctx context.Context, filter audit.Filter, fn func(audit.Event) error) error
}

// Write streams matching events to w and returns how many were written.
func Write(ctx context.Context, w io.Writer, src Source, format Format, filter audit.Filter) (int, error) {
	switch format {
	case FormatJSON:
		return writeJSON(ctx, w, src, filter)
	case FormatCSV:
		return writeCSV(ctx, w, src, filter)
	}
	return 0, fmt.Errorf("unsupported export format %q", format)
}

// ToFile writes the export to path atomically: a temp file in the same
// directory is synced and then hard-linked to path, so path either holds a
// complete export or does not exist. An existing file at path is never
// replaced; that is sentinel.ErrExportExists. The temp file is always
// removed. Other destination problems are sentinel.ErrExportIO.
func ToFile(ctx context.Context, src Source, path string, format Format, filter audit.Filter) (int, error) {
	if _, err := os.Lstat(path); err == nil {
		return 0, fmt.Errorf("export %s: %w", path, sentinel.ErrExportExists)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create export in %s: %w: %w", dir, sentinel.ErrExportIO, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	buf := bufio.NewWriter(tmp)
	n, err := Write(ctx, buf, src, format, filter)
	if err != nil {
		return 0, err
	}
	if err := buf.Flush(); err != nil {
		return 0, fmt.Errorf("write export: %w: %w", sentinel.ErrExportIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync export: %w: %w", sentinel.ErrExportIO, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close export: %w: %w", sentinel.ErrExportIO, err)
	}
	// Link fails with EEXIST instead of replacing, which closes the race
	// with the Lstat above.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("export %s: %w", path, sentinel.ErrExportExists)
		}
		return 0, fmt.Errorf("publish export %s: %w: %w", path, sentinel.ErrExportIO, err)
	}
	return n, nil
}

func writeJSON(ctx context.Context, w io.Writer, src Source, filter audit.Filter) (int, error) {
	count := 0
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, ioErr(err)
	}
	err := src.Stream(ctx, filter, func(e audit.Event) error {
		line, err := json.Marshal(e.ToRecord())
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.EventID, err)
		}
		sep := ",\n  "
		if count == 0 {
			sep = "\n  "
		}
		if _, err := io.WriteString(w, sep); err != nil {
			return ioErr(err)
		}
		if _, err := w.Write(line); err != nil {
			return ioErr(err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	tail := "\n]\n"
	if count == 0 {
		tail = "]\n"
	}
	if _, err := io.WriteString(w, tail); err != nil {
		return 0, ioErr(err)
	}
	return count, nil
}

func writeCSV(ctx context.Context, w io.Writer, src Source, filter audit.Filter) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(audit.Columns); err != nil {
		return 0, ioErr(err)
	}
	count := 0
	err := src.Stream(ctx, filter, func(e audit.Event) error {
		if err := cw.Write(csvRow(e)); err != nil {
			return ioErr(err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, ioErr(err)
	}
	return count, nil
}

func csvRow(e audit.Event) []string {
	return []string{
		e.EventID,
		string(e.EventType),
		string(e.Severity),
		e.Description,
		e.ResourceID,
		e.Actor.UserID,
		e.Actor.Username,
		e.Actor.IPAddress,
		audit.FormatTimestamp(e.Timestamp),
		string(e.ExtraData),
	}
}

func ioErr(err error) error {
	return fmt.Errorf("write export: %w: %w", sentinel.ErrExportIO, err)
}
