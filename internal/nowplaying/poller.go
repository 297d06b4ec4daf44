// Package nowplaying observes the player's current track through an
// external command and reports identity changes.
package nowplaying

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/process"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// StatusPlaying is the only status that carries a track.
const StatusPlaying = "playing"

// Observer receives track identity changes. A nil trackID means nothing is
// playing.
type Observer interface {
	OnNowPlayingChanged(trackID *string, startedAt time.Time)
}

// ParseLine parses "status<TAB>id" output. It returns the track id when the
// status is playing and the id is non-empty.
func ParseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	status, id, found := strings.Cut(line, "\t")
	if !found || !strings.EqualFold(strings.TrimSpace(status), StatusPlaying) {
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// Options configures a Poller.
type Options struct {
	Command  string
	Interval time.Duration
	Timeout  time.Duration
	Observer Observer
	Logger   *slog.Logger
}

// Poller runs Command every Interval and reports changes to Observer.
type Poller struct {
	opts   Options
	logger *slog.Logger
	output func(ctx context.Context, command string) (string, error)

	mu      sync.Mutex
	current string
	playing bool
	polled  bool
	failing bool
}

// New creates a poller.
func New(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("nowplaying")
	}
	return &Poller{opts: opts, logger: logger, output: process.Output}
}

// Current returns the last observed track.
func (p *Poller) Current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.playing
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Now-playing poller started", "command", p.opts.Command, "interval", p.opts.Interval)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs the command once. A command that exits non-zero means nothing
// is playing; timeouts and start failures leave the last known track in place.
func (p *Poller) Poll(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	out, err := p.output(runCtx, p.opts.Command)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		var cmdErr *process.CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
			p.logger.Debug("Now-playing command reported no player", "exit_code", cmdErr.ExitCode)
			out = ""
		} else {
			p.mu.Lock()
			first := !p.failing
			p.failing = true
			p.mu.Unlock()
			if first {
				p.logger.Warn("Now-playing command failed", "error", err)
			}
			return
		}
	}

	id, playing := ParseLine(firstLine(out))

	p.mu.Lock()
	if p.failing {
		p.logger.Info("Now-playing command recovered")
	}
	p.failing = false
	changed := !p.polled || playing != p.playing || id != p.current
	p.polled = true
	p.current, p.playing = id, playing
	p.mu.Unlock()

	if !changed || p.opts.Observer == nil {
		return
	}
	if playing {
		p.logger.Info("Now playing", "track_id", id)
		p.opts.Observer.OnNowPlayingChanged(&id, time.Now())
		return
	}
	p.logger.Info("Playback stopped")
	p.opts.Observer.OnNowPlayingChanged(nil, time.Time{})
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
