package logging

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// levelFor resolves the level for module: its override, then the global
// level, then info.
func (c Config) levelFor(module string) slog.Level {
	if l, ok := parseLevel(c.Modules[module]); ok {
		return l
	}
	if l, ok := parseLevel(c.Level); ok {
		return l
	}
	return slog.LevelInfo
}

type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mutex       sync.RWMutex
	modules     = make(map[string]*moduleLogger)
	configured  *Config
	logBuffer   *RingBuffer
	logCallback LogCallback
)

// Initialize applies config. Loggers handed out earlier keep working and
// pick up the new levels, format and the log buffer.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	configured = &config
	logBuffer = NewRingBuffer(defaultBufferSize)

	for name, m := range modules {
		m.level.Set(config.levelFor(name))
		m.logger = newModuleLogger(config.Format, name, m.level)
	}

	global := &slog.LevelVar{}
	global.Set(config.levelFor(""))
	slog.SetDefault(slog.New(createHandler(config.Format, global)))
}

// GetBuffer returns the log history, or nil before Initialize.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback registers a function called with every buffered entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	m, ok := modules[module]
	mutex.RUnlock()
	if ok {
		return m.logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if m, ok := modules[module]; ok {
		return m.logger
	}

	cfg := Config{Format: "text"}
	if configured != nil {
		cfg = *configured
	}
	level := &slog.LevelVar{}
	level.Set(cfg.levelFor(module))
	m = &moduleLogger{level: level, logger: newModuleLogger(cfg.Format, module, level)}
	modules[module] = m
	return m.logger
}

func newModuleLogger(format, module string, level *slog.LevelVar) *slog.Logger {
	return slog.New(createHandler(format, level)).With("module", module)
}

// SetModuleLevel changes a module's level at runtime.
func SetModuleLevel(module, level string) error {
	parsed, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}
	GetLogger(module)

	mutex.RLock()
	defer mutex.RUnlock()
	modules[module].level.Set(parsed)
	return nil
}

// Levels returns the effective level of every module logger created so far.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	levels := make(map[string]string, len(modules))
	for name, m := range modules {
		levels[name] = levelToString(m.level.Level())
	}
	return levels
}

// ModuleOverrides returns a copy of the configured per-module levels.
func ModuleOverrides() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	if configured == nil {
		return map[string]string{}
	}
	return maps.Clone(configured.Modules)
}

// createHandler writes to stdout, the journal and the log buffer. Under
// systemd, stdout already feeds the journal, so it is skipped when the
// journal handler is active.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	journal := IsJournalAvailable()
	if journal {
		handlers = append(handlers, NewJournalHandler(level))
	}
	if isStdoutAvailable() && !(journal && stdoutIsJournal()) {
		handlers = append(handlers, stdout)
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// stdoutIsJournal reports whether systemd connected stdout to the journal,
// by comparing JOURNAL_STREAM ("device:inode") with stdout's identity.
func stdoutIsJournal() bool {
	stream := os.Getenv("JOURNAL_STREAM")
	if stream == "" {
		return false
	}
	dev, ino, ok := fileIdentity(os.Stdout)
	return ok && stream == fmt.Sprintf("%d:%d", dev, ino)
}

// isStdoutAvailable is false when stdout is /dev/null or closed.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
