// ABOUTME: slog setup for goal-tracker binaries
// ABOUTME: Colorized or JSON console output, optionally fanned out to a rotating JSON log file

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/2389/goal-tracker/internal/config"
)

// ParseLevel maps a config level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// New builds a logger writing to console. When cfg.File is set, records are
// also written as JSON to that file with size-based rotation. The returned
// Closer releases the file and must be closed on shutdown.
func New(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if cfg.Format == "json" {
		handlers = append(handlers, slog.NewJSONHandler(console, opts))
	} else {
		handlers = append(handlers, NewColorHandler(console, level))
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(fileWriter, opts))
		closer = fileWriter
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	} else {
		handler = handlers[0]
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ColorHandler provides colorized log output with thread-safe writes.
type ColorHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

// NewColorHandler returns a handler writing human-readable lines to w.
func NewColorHandler(w io.Writer, level slog.Level) *ColorHandler {
	return &ColorHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs (from WithAttrs) come first
	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func (h *ColorHandler) writeAttr(buf *strings.Builder, a slog.Attr) {
	key := a.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	buf.WriteString(color.HiBlackString(" " + key + "="))
	buf.WriteString(a.Value.String())
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &ColorHandler{
		mu:     h.mu,
		w:      h.w,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &ColorHandler{
		mu:     h.mu,
		w:      h.w,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
