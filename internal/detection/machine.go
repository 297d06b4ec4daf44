package detection

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Machine is the single-writer owner of a detection State.
type Machine struct {
	mu    sync.Mutex
	state State
	cfg   Config
	now   func() time.Time
	newID func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator replaces the UUID request id generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// NewMachine creates a Machine in the initial state.
func NewMachine(cfg Config, opts ...Option) *Machine {
	m := &Machine{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply folds in at the current time.
func (m *Machine) Apply(in Input) []Request {
	return m.ApplyAt(in, m.now())
}

// ApplyAt folds in at the given time and stamps emitted requests with ids.
func (m *Machine) ApplyAt(in Input, at time.Time) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, reqs := Fold(m.state, in, at, m.cfg)
	m.state = next
	for i := range reqs {
		reqs[i].ID = m.newID()
	}
	return reqs
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Config returns the active configuration.
func (m *Machine) Config() Config {
	return m.cfg
}
