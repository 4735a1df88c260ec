// ABOUTME: Tests for logger construction and the color console handler
// ABOUTME: Disables ANSI color so output can be matched as plain text

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/goal-tracker/internal/config"
)

func init() {
	color.NoColor = true
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelInfo))

	logger.With("component", "store").WithGroup("req").Info("checked in", "goal", "run")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INF checked in")
	assert.Contains(t, out, "component=store")
	assert.Contains(t, out, "req.goal=run")
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hello", "n", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
}

func TestNew_FanOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "goal-tracker.log")

	logger, closer, err := New(config.LoggingConfig{
		Level:      "info",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}, &buf)
	require.NoError(t, err)

	logger.Warn("disk nearly full", "free_mb", 12)
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "WRN disk nearly full")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "disk nearly full", rec["msg"])
	assert.Equal(t, float64(12), rec["free_mb"])
}
