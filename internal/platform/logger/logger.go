// Package logger builds the service's operational slog loggers. The
// operational log is not the audit trail: it carries request logs and audit
// write failures, and may be rotated or dropped without losing audit data.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the operational logger.
type Options struct {
	Level string
	// File, when set, receives a copy of every record, rotated by size.
	File       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

// New returns a JSON logger writing to stdout and, if configured, a rotated
// file. The returned closer flushes and closes the file.
func New(opts Options) (*slog.Logger, io.Closer) {
	return newLogger(os.Stdout, opts)
}

func newLogger(stdout io.Writer, opts Options) (*slog.Logger, io.Closer) {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	if opts.File == "" {
		return slog.New(slog.NewJSONHandler(stdout, handlerOpts)), nopCloser{}
	}

	rotated := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxAge:     opts.MaxAgeDays,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(stdout, rotated), handlerOpts)), rotated
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
