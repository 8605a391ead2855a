package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LevelSuccess sits between info and warn. It is rendered with the "ok" tag
// and hidden by --quiet along with info.
const LevelSuccess = slog.LevelInfo + 2

// MultiHandler fans records out to several handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler returns a handler writing to every h.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled reports whether any handler accepts level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}

// StatusHandler renders records as a status tag followed by the message and
// key=value attributes:
//
//	 ok   chunk 3/10 done chunk=2 remaining=7 eta=1h 02m 00s
//	warn  retrying phase chunk=4 phase=source attempt=2
type StatusHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	styles map[string]lipgloss.Style
	prefix string // group prefix for attrs added later
	attrs  string // preformatted attrs from WithAttrs
}

// StatusHandlerOptions configures a StatusHandler.
type StatusHandlerOptions struct {
	Level slog.Leveler
	// Renderer colours the tags. Nil renders plain text.
	Renderer *lipgloss.Renderer
}

// NewStatusHandler returns a StatusHandler writing to w.
func NewStatusHandler(w io.Writer, opts *StatusHandlerOptions) *StatusHandler {
	if opts == nil {
		opts = &StatusHandlerOptions{}
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	h := &StatusHandler{mu: &sync.Mutex{}, w: w, level: level}
	if opts.Renderer != nil {
		h.styles = tagStyles(opts.Renderer)
	}
	return h
}

func (h *StatusHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Tag returns the status tag for level.
func Tag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= LevelSuccess:
		return "ok"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

func (h *StatusHandler) Handle(_ context.Context, r slog.Record) error {
	tag := Tag(r.Level)
	padded := fmt.Sprintf("%-5s", tag)
	if st, ok := h.styles[tag]; ok {
		padded = st.Render(padded)
	}

	var b strings.Builder
	b.WriteString(padded)
	b.WriteString(" ")
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *StatusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	h2 := *h
	h2.attrs += b.String()
	return &h2
}

func (h *StatusHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix += name + "."
	return &h2
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range group {
			writeAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindDuration:
		s = FormatDuration(v.Duration())
	case slog.KindTime:
		s = v.Time().Format(time.DateTime)
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// LevelNames renders LevelSuccess as "OK" in handlers that print level
// names, such as the JSON log file.
func LevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelSuccess {
		a.Value = slog.StringValue("OK")
	}
	return a
}
