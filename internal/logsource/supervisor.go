// Package logsource keeps the player's log stream running and forwards its
// lines. The stream command is restarted with exponential backoff when it
// exits and immediately when the host wakes from sleep.
package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/metrics"
	"github.com/smazurov/formatsync/internal/process"
)

// MusicLogCommand streams the Music app's playback subsystem in compact form.
// It only exists on macOS.
const MusicLogCommand = `log stream --style compact --predicate "subsystem == 'com.apple.Music' AND category == 'ampplay'"`

// StdinCommand reads lines from standard input instead of a subprocess.
const StdinCommand = "-"

// DefaultCommand is the log source used when none is configured.
var DefaultCommand = DefaultCommandFor(runtime.GOOS)

// DefaultCommandFor returns MusicLogCommand on darwin and StdinCommand
// elsewhere, where a bridge is expected to pipe player lines in.
func DefaultCommandFor(goos string) string {
	if goos == "darwin" {
		return MusicLogCommand
	}
	return StdinCommand
}

const (
	DefaultMinBackoff    = time.Second
	DefaultMaxBackoff    = time.Minute
	DefaultWakeInterval  = 5 * time.Second
	DefaultWakeThreshold = 10 * time.Second
)

// Restart reasons.
const (
	ReasonExit      = "exit"
	ReasonStartFail = "start-failed"
	ReasonWake      = "wake"
	ReasonRequested = "requested"
)

// State of the supervised stream.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
)

// Publisher receives state change events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Supervisor.
type Options struct {
	Command       string
	OnLine        func(line string)
	Bus           Publisher
	Stdin         io.Reader
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	WakeInterval  time.Duration
	WakeThreshold time.Duration
	Logger        *slog.Logger
}

// Info describes the supervised stream.
type Info struct {
	Command    string    `json:"command"`
	State      State     `json:"state"`
	PID        int       `json:"pid,omitempty"`
	Restarts   int       `json:"restarts"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	LastLineAt time.Time `json:"last_line_at,omitzero"`
	LastError  string    `json:"last_error,omitempty"`
}

// Supervisor runs the log stream until its context is cancelled.
type Supervisor struct {
	opts    Options
	logger  *slog.Logger
	restart chan string

	mu   sync.Mutex
	info Info
	proc *process.Process
}

// New creates a supervisor. An empty command selects DefaultCommand.
func New(opts Options) *Supervisor {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.MinBackoff)
	}
	if opts.WakeInterval <= 0 {
		opts.WakeInterval = DefaultWakeInterval
	}
	if opts.WakeThreshold <= 0 {
		opts.WakeThreshold = DefaultWakeThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("logsource")
	}
	return &Supervisor{
		opts:    opts,
		logger:  logger,
		restart: make(chan string, 1),
		info:    Info{Command: opts.Command, State: StateIdle},
	}
}

// RequestRestart asks for the stream to be restarted. Non-blocking: if a
// restart is already pending this is a no-op.
func (s *Supervisor) RequestRestart(reason string) {
	select {
	case s.restart <- reason:
		s.logger.Info("Log stream restart requested", "reason", reason)
	default:
		s.logger.Debug("Log stream restart already pending", "reason", reason)
	}
}

// Info returns the current stream state.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	if s.proc != nil {
		info.PID = s.proc.PID()
	}
	return info
}

// Run blocks until ctx is cancelled. In stdin mode it also returns at EOF.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.opts.Command == StdinCommand {
		return s.runStdin(ctx)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchWake(ctx)
	}()
	defer wg.Wait()

	backoff := s.opts.MinBackoff
	for {
		started := time.Now()
		reason, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setState(StateStopped, "", nil)
			s.logger.Info("Log stream stopped")
			return nil
		}

		if time.Since(started) > s.opts.MaxBackoff {
			backoff = s.opts.MinBackoff
		}

		wait := time.Duration(0)
		if reason == ReasonExit || reason == ReasonStartFail {
			wait = backoff
			backoff = min(backoff*2, s.opts.MaxBackoff)
		}

		s.mu.Lock()
		s.info.Restarts++
		restarts := s.info.Restarts
		s.mu.Unlock()
		s.setState(StateRestarting, reason, err)
		metrics.RecordLogSourceRestart(reason)
		s.logger.Warn("Log stream restarting", "reason", reason, "delay", wait, "restarts", restarts, "error", err)

		if !s.sleep(ctx, wait) {
			s.setState(StateStopped, "", nil)
			return nil
		}
	}
}

// runOnce runs one instance of the command and reports why it ended.
func (s *Supervisor) runOnce(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc := process.New("log-stream", s.opts.Command, s.logger, s.handleOutput)
	s.mu.Lock()
	s.proc = proc
	s.info.StartedAt = time.Now()
	s.mu.Unlock()
	s.setState(StateRunning, "", nil)

	results := make(chan process.Result, 1)
	go func() { results <- proc.Run(runCtx) }()

	var requested string
	var res process.Result
	select {
	case res = <-results:
	case requested = <-s.restart:
		cancel()
		res = <-results
	}

	s.mu.Lock()
	s.proc = nil
	s.mu.Unlock()

	switch {
	case requested != "":
		return requested, nil
	case res.Reason == process.ExitReasonStartFailed:
		return ReasonStartFail, res.Err
	case res.Err != nil:
		return ReasonExit, res.Err
	default:
		return ReasonExit, errors.New("log stream exited")
	}
}

// sleep waits d, cut short by a restart request. It reports false when ctx
// ended first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case reason := <-s.restart:
		s.logger.Debug("Skipping backoff", "reason", reason)
		return true
	}
}

func (s *Supervisor) handleOutput(source, line string) {
	if source == process.SourceStderr {
		s.logger.Debug("Log stream stderr", "line", line)
		return
	}
	s.line(line)
}

func (s *Supervisor) line(line string) {
	s.mu.Lock()
	s.info.LastLineAt = time.Now()
	s.mu.Unlock()
	if s.opts.OnLine != nil {
		s.opts.OnLine(line)
	}
}

// runStdin forwards standard input. The reader is not interruptible, so a
// cancelled Run returns without waiting for it.
func (s *Supervisor) runStdin(ctx context.Context) error {
	s.setState(StateRunning, "", nil)
	done := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.opts.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				break
			}
			s.line(scanner.Text())
		}
		done <- scanner.Err()
	}()

	select {
	case <-ctx.Done():
		s.setState(StateStopped, "", nil)
		return nil
	case err := <-done:
		s.setState(StateStopped, "eof", err)
		s.logger.Info("Standard input closed")
		return err
	}
}

// watchWake restarts the stream after the host slept. The monotonic clock
// pauses during sleep while the wall clock keeps running.
func (s *Supervisor) watchWake(ctx context.Context) {
	ticker := time.NewTicker(s.opts.WakeInterval)
	defer ticker.Stop()

	prev := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := time.Now()
			wall := cur.Round(0).Sub(prev.Round(0))
			mono := cur.Sub(prev)
			prev = cur
			if slept(wall, mono, s.opts.WakeThreshold) {
				s.logger.Info("Wake detected", "wall", wall, "monotonic", mono)
				s.RequestRestart(ReasonWake)
			}
		}
	}
}

// slept reports whether the wall clock ran ahead of the monotonic clock by
// more than threshold.
func slept(wall, mono, threshold time.Duration) bool {
	return wall-mono > threshold
}

func (s *Supervisor) setState(state State, reason string, err error) {
	s.mu.Lock()
	prev := s.info.State
	s.info.State = state
	if err != nil {
		s.info.LastError = err.Error()
	}
	restarts := s.info.Restarts
	s.mu.Unlock()

	if prev == state && state != StateRestarting {
		return
	}
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(events.LogSourceStateChangedEvent{
			State:     string(state),
			Reason:    reason,
			Restarts:  restarts,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
