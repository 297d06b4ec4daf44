package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry.
const SyslogIdentifier = "formatsync"

// JournalHandler writes records to the systemd journal as structured
// entries, so that `journalctl DEVICE_ID=hw:1` style queries work.
type JournalHandler struct {
	level  slog.Leveler
	prefix string
	fields map[string]string
	send   func(message string, priority journal.Priority, vars map[string]string) error
	failed *atomic.Bool
}

// NewJournalHandler creates a handler that sends to the local journal.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		level:  level,
		fields: map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier},
		send:   journal.Send,
		failed: new(atomic.Bool),
	}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	vars := make(map[string]string, len(h.fields)+r.NumAttrs())
	for k, v := range h.fields {
		vars[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		putField(vars, h.prefix, a)
		return true
	})

	err := h.send(r.Message, priority(r.Level), vars)
	if err != nil && h.failed.CompareAndSwap(false, true) {
		// Reported once; stdout may be unavailable when running under systemd.
		fmt.Fprintf(os.Stderr, "journal unavailable, dropping log entries: %v\n", err)
	}
	return err
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, a := range attrs {
		putField(clone.fields, h.prefix, a)
	}
	return clone
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.prefix = h.prefix + fieldName(name) + "_"
	return clone
}

func (h *JournalHandler) clone() *JournalHandler {
	fields := make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		fields[k] = v
	}
	return &JournalHandler{level: h.level, prefix: h.prefix, fields: fields, send: h.send, failed: h.failed}
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func putField(vars map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += fieldName(a.Key) + "_"
		}
		for _, ga := range a.Value.Group() {
			putField(vars, prefix, ga)
		}
		return
	}

	var v string
	switch a.Value.Kind() {
	case slog.KindTime:
		v = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindFloat64:
		v = strconv.FormatFloat(a.Value.Float64(), 'g', -1, 64)
	default:
		v = a.Value.String()
	}
	vars[prefix+fieldName(a.Key)] = v
}

// fieldName maps an attribute key onto the journal field alphabet: upper
// case letters, digits and underscores, not starting with an underscore or
// a digit.
func fieldName(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteRune(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), "_")
	if name == "" || name[0] >= '0' && name[0] <= '9' {
		name = "F_" + name
	}
	return name
}

// IsJournalAvailable reports whether the journal socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
