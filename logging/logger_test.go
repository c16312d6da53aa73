package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := New(Options{Level: slog.LevelWarn, Console: &console})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept", "drug_id", "d1")

	out := console.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "drug_id=d1")
}

func TestNewWritesJSONFileAtDebug(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger, closer, err := New(Options{Dir: dir, Level: slog.LevelError, Console: &console})
	require.NoError(t, err)

	logger.With("component", "test").Debug("cache miss", "key", "substitutes:d1:s1:false")
	require.NoError(t, closer.Close())

	assert.Empty(t, console.String())

	rf, ok := closer.(*RotatingFile)
	require.True(t, ok)
	content, err := os.ReadFile(rf.CurrentPath())
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(content), &record))
	assert.Equal(t, "cache miss", record["msg"])
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "test", record["component"])
	assert.Equal(t, "substitutes:d1:s1:false", record["key"])
}

func TestFanoutHandlerGroups(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(fanoutHandler{
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	})

	logger.WithGroup("audit").Info("entry", "action", "UPDATED")

	assert.Contains(t, a.String(), "audit.action=UPDATED")
	assert.Empty(t, b.String())
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, slog.New(fanoutHandler{slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError})}).
		Enabled(t.Context(), slog.LevelWarn))
}

func TestPackageHelpersUseInstalledLogger(t *testing.T) {
	previous := Logger()
	defer SetDefault(previous)

	var buf bytes.Buffer
	SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for i, level := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		assert.Contains(t, lines[i], "level="+level)
	}
}

func TestInitInstallsLogger(t *testing.T) {
	previous := Logger()
	defer SetDefault(previous)

	var console bytes.Buffer
	closer, err := Init(Options{Level: slog.LevelInfo, Console: &console})
	require.NoError(t, err)
	defer closer.Close()

	Info("started", "port", 8000)
	assert.Contains(t, console.String(), "port=8000")
}
