package logging

import (
	"context"
	"log/slog"
	"time"
)

// LogCallback is called with every buffered entry.
type LogCallback func(entry LogEntry)

// BufferHandler records entries in the package ring buffer for the log API.
// The buffer and callback are looked up per record, so handlers created
// before Initialize start recording once it runs.
type BufferHandler struct {
	level  slog.Leveler
	module string
	prefix string
	attrs  map[string]any
}

func NewBufferHandler(level slog.Leveler) *BufferHandler {
	return &BufferHandler{level: level, module: "app", attrs: map[string]any{}}
}

func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	mutex.RLock()
	buffer, callback := logBuffer, logCallback
	mutex.RUnlock()
	if buffer == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     h.module,
		Message:    r.Message,
		Attributes: make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}
	for k, v := range h.attrs {
		entry.Attributes[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" && h.prefix == "" {
			entry.Module = a.Value.String()
		} else {
			putAttr(entry.Attributes, h.prefix, a)
		}
		return true
	})

	entry = buffer.Write(entry)
	if callback != nil {
		callback(entry)
	}
	return nil
}

func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, a := range attrs {
		if a.Key == "module" && h.prefix == "" {
			clone.module = a.Value.String()
			continue
		}
		putAttr(clone.attrs, h.prefix, a)
	}
	return clone
}

func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.prefix = h.prefix + name + "."
	return clone
}

func (h *BufferHandler) clone() *BufferHandler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &BufferHandler{level: h.level, module: h.module, prefix: h.prefix, attrs: attrs}
}

// putAttr flattens a into attrs with dotted group keys, rendering values
// the way JSON clients expect them.
func putAttr(attrs map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key
	switch a.Value.Kind() {
	case slog.KindGroup:
		if a.Key != "" {
			prefix = key + "."
		}
		for _, ga := range a.Value.Group() {
			putAttr(attrs, prefix, ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
