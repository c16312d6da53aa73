package logging

import (
	"io"
	"log/slog"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

// Init builds the process logger from opts and installs it as the default.
// On error the console-only logger is still installed.
func Init(opts Options) (io.Closer, error) {
	logger, closer, err := New(opts)
	SetDefault(logger)
	return closer, err
}

// SetDefault installs logger for the package helpers and slog's default.
func SetDefault(logger *slog.Logger) {
	current.Store(logger)
	slog.SetDefault(logger)
}

// Logger returns the installed logger, falling back to slog's default.
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}
