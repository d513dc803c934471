package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// consoleHandler renders compact single-line log output for terminals.
type consoleHandler struct {
	opts  *slog.HandlerOptions
	mu    *sync.Mutex
	out   io.Writer
	color bool
	attrs []slog.Attr
	group string
}

type fdWriter interface {
	Fd() uintptr
}

func newConsoleHandler(out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	color := false
	if f, ok := out.(fdWriter); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &consoleHandler{
		opts:  opts,
		mu:    &sync.Mutex{},
		out:   out,
		color: color,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts != nil && h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(record.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(record.Level))
	b.WriteByte(' ')
	b.WriteString(record.Message)

	write := func(attr slog.Attr) {
		if attr.Equal(slog.Attr{}) {
			return
		}
		key := attr.Key
		if h.group != "" {
			key = h.group + "." + key
		}
		fmt.Fprintf(&b, " %s=%v", key, attr.Value.Resolve().Any())
	}
	for _, attr := range h.attrs {
		write(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		write(attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	label, tint := "INF", "\x1b[32m"
	switch {
	case level >= slog.LevelError:
		label, tint = "ERR", "\x1b[31m"
	case level >= slog.LevelWarn:
		label, tint = "WRN", "\x1b[33m"
	case level < slog.LevelInfo:
		label, tint = "DBG", "\x1b[36m"
	}
	if h.color {
		return tint + label + "\x1b[0m"
	}
	return label
}
