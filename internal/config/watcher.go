package config

import (
	"bytes"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce collapses the bursts of events an editor save produces.
const DefaultWatchDebounce = 1500 * time.Millisecond

// Watcher reloads a file into a T whenever it changes and hands the result to
// registered handlers. The parent directory is watched so that files replaced
// by rename keep being tracked. Saves that leave the bytes unchanged are
// skipped, and a file that fails to load leaves the last good value in place.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int
	last     T
	hasLast  bool
	digest   [sha256.Size]byte
	reloads  int

	fsw  *fsnotify.Watcher
	stop chan struct{}
	done chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long the file must be quiet before it is reloaded.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// WithErrorHandler is called when a changed file fails to load.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) { w.onError = handler }
}

// NewConfigWatcher creates a watcher for path. loader runs on every change.
func NewConfigWatcher[T any](path string, loader func(path string) (T, error), logger *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultWatchDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers handler and returns a function that removes it.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Last returns the most recently loaded value.
func (w *Watcher[T]) Last() (T, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.hasLast
}

// Reloads counts the changes delivered to handlers.
func (w *Watcher[T]) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Start records the current contents and begins watching.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}

	if data, err := os.ReadFile(w.path); err == nil {
		w.mu.Lock()
		w.digest = sha256.Sum256(data)
		w.mu.Unlock()
	}
	if v, err := w.loader(w.path); err == nil {
		w.mu.Lock()
		w.last, w.hasLast = v, true
		w.mu.Unlock()
	}

	w.fsw = fsw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.logger.Info("Watching file", "path", w.path, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop ends watching and waits for the watch loop to exit. Handlers are not
// called after Stop returns.
func (w *Watcher[T]) Stop() error {
	if w.fsw == nil {
		return nil
	}
	close(w.stop)
	<-w.done
	err := w.fsw.Close()
	w.fsw = nil
	return err
}

func (w *Watcher[T]) watch() {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("File change detected", "path", w.path, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// A rename in progress; the Create that follows triggers another reload.
		w.logger.Debug("File not readable", "path", w.path, "error", err)
		return
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	unchanged := bytes.Equal(sum[:], w.digest[:])
	w.mu.Unlock()
	if unchanged {
		w.logger.Debug("File contents unchanged", "path", w.path)
		return
	}

	v, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Failed to load changed file", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	w.digest = sum
	w.last, w.hasLast = v, true
	w.reloads++
	handlers := make([]func(T), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	w.logger.Info("File reloaded", "path", w.path)
	for _, h := range handlers {
		h(v)
	}
}
