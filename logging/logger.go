// Package logging sets up structured slog logging: human-readable text on the
// console and JSON into weekly rotating files.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	DefaultRetentionWeeks = 4
	DefaultMaxFileSize    = 100 * 1024 * 1024
	filePrefix            = "substitutes"
)

// Options configure New. An empty Dir disables file output.
type Options struct {
	Dir            string
	Level          slog.Level
	RetentionWeeks int
	MaxFileSize    int64
	Console        io.Writer
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
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

// New builds a logger writing text to the console at opts.Level and, when a
// directory is set, JSON at debug level into a RotatingFile. The returned
// closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: opts.Level})
	if opts.Dir == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	retention := opts.RetentionWeeks
	if retention <= 0 {
		retention = DefaultRetentionWeeks
	}
	maxSize := opts.MaxFileSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	rf, err := OpenRotatingFile(opts.Dir, filePrefix, retention, maxSize)
	if err != nil {
		return slog.New(consoleHandler), nopCloser{}, err
	}
	fileHandler := slog.NewJSONHandler(rf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(fanoutHandler{consoleHandler, fileHandler}), rf, nil
}

// fanoutHandler sends every record to each handler that accepts its level.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
