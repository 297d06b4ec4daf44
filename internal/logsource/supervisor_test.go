package logsource

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/metrics"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) OnLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type stateBus struct {
	mu     sync.Mutex
	states []events.LogSourceStateChangedEvent
}

func (b *stateBus) Publish(ev events.Event) {
	if e, ok := ev.(events.LogSourceStateChangedEvent); ok {
		b.mu.Lock()
		b.states = append(b.states, e)
		b.mu.Unlock()
	}
}

func (b *stateBus) reasons() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.states {
		if e.State == string(StateRestarting) {
			out = append(out, e.Reason)
		}
	}
	return out
}

func runSupervisor(t *testing.T, s *Supervisor) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("supervisor did not stop")
		}
	}
}

func TestSupervisorRestartsExitedStream(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &lineRecorder{}
	bus := &stateBus{}
	s := New(Options{
		Command:    "echo 'play> cm>> currentItemChanged item'",
		OnLine:     rec.OnLine,
		Bus:        bus,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 40 * time.Millisecond,
	})
	stop := runSupervisor(t, s)

	require.Eventually(t, func() bool {
		return s.Info().Restarts >= 2
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	lines := rec.Lines()
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "play> cm>> currentItemChanged item", lines[0])
	assert.Equal(t, StateStopped, s.Info().State)
	assert.Contains(t, bus.reasons(), ReasonExit)
	assert.GreaterOrEqual(t, metrics.Snapshot().Restarts, uint64(2))
}

func TestSupervisorStderrIsNotForwarded(t *testing.T) {
	rec := &lineRecorder{}
	s := New(Options{
		Command:    `sh -c "echo out; echo err >&2; sleep 30"`,
		OnLine:     rec.OnLine,
		MinBackoff: 10 * time.Millisecond,
	})
	stop := runSupervisor(t, s)
	defer stop()

	require.Eventually(t, func() bool {
		return len(rec.Lines()) > 0
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"out"}, rec.Lines())
	assert.False(t, s.Info().LastLineAt.IsZero())
}

func TestSupervisorRequestRestart(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := &stateBus{}
	s := New(Options{Command: "sleep 30", Bus: bus, MinBackoff: time.Hour})
	stop := runSupervisor(t, s)

	require.Eventually(t, func() bool {
		info := s.Info()
		return info.State == StateRunning && info.PID != 0
	}, 5*time.Second, 10*time.Millisecond)
	firstPID := s.Info().PID

	s.RequestRestart(ReasonRequested)

	// A requested restart skips the backoff delay.
	require.Eventually(t, func() bool {
		info := s.Info()
		return info.Restarts == 1 && info.PID != 0 && info.PID != firstPID
	}, 5*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, []string{ReasonRequested}, bus.reasons())
}

func TestSupervisorStartFailure(t *testing.T) {
	s := New(Options{
		Command:    "/nonexistent/log-stream",
		MinBackoff: 5 * time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
	})
	stop := runSupervisor(t, s)
	defer stop()

	require.Eventually(t, func() bool {
		return s.Info().Restarts >= 3
	}, 5*time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, s.Info().LastError)
}

func TestSupervisorStdin(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &lineRecorder{}
	s := New(Options{
		Command: StdinCommand,
		Stdin:   strings.NewReader("first\nsecond\n"),
		OnLine:  rec.OnLine,
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"first", "second"}, rec.Lines())
	assert.Equal(t, StateStopped, s.Info().State)
	assert.Zero(t, s.Info().Restarts)
}

func TestRequestRestartIsNonBlocking(t *testing.T) {
	s := New(Options{})
	s.RequestRestart(ReasonWake)
	s.RequestRestart(ReasonWake)
	assert.Len(t, s.restart, 1)
}

func TestSlept(t *testing.T) {
	tests := []struct {
		name string
		wall time.Duration
		mono time.Duration
		want bool
	}{
		{"steady", 5 * time.Second, 5 * time.Second, false},
		{"small drift", 5*time.Second + 200*time.Millisecond, 5 * time.Second, false},
		{"slept an hour", time.Hour, 5 * time.Second, true},
		{"wall clock set back", 0, 5 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slept(tt.wall, tt.mono, DefaultWakeThreshold))
		})
	}
}

func TestNewDefaults(t *testing.T) {
	s := New(Options{})
	info := s.Info()
	assert.Equal(t, DefaultCommand, info.Command)
	assert.Equal(t, StateIdle, info.State)
	assert.Equal(t, DefaultMinBackoff, s.opts.MinBackoff)
	assert.Equal(t, DefaultMaxBackoff, s.opts.MaxBackoff)
}

func TestDefaultCommandFor(t *testing.T) {
	assert.Equal(t, MusicLogCommand, DefaultCommandFor("darwin"))
	assert.Equal(t, StdinCommand, DefaultCommandFor("linux"))
	assert.Equal(t, StdinCommand, DefaultCommandFor("freebsd"))
}
