package negotiation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/formatsync/internal/detection"
	"github.com/smazurov/formatsync/internal/devices"
	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/format"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/metrics"
)

// Outcome is the result of handling one request.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeNoMatch   Outcome = "no-match"
	OutcomeNoDevice  Outcome = "no-device"
	OutcomeFailed    Outcome = "failed"
)

// Catalog is the read side of the device catalog.
type Catalog interface {
	Snapshot() devices.Snapshot
}

// Port reconfigures an output device.
type Port interface {
	Apply(ctx context.Context, dev devices.Record, f format.Descriptor) error
}

// Publisher receives engine events.
type Publisher interface {
	Publish(ev events.Event)
}

// Result describes how a request was handled.
type Result struct {
	RequestID string
	Outcome   Outcome
	DeviceID  string
	Format    format.Descriptor // applied or matched format
	Fallback  bool
	Err       error
}

// Applied is the last format written to a device.
type Applied struct {
	RequestID string            `json:"request_id"`
	DeviceID  string            `json:"device_id"`
	Format    format.Descriptor `json:"format"`
	Fallback  bool              `json:"fallback"`
	At        time.Time         `json:"at"`
}

// Engine applies detection requests to the selected device. Handle may be
// called concurrently; writes to the same device are serialized.
type Engine struct {
	catalog Catalog
	port    Port
	bus     Publisher
	policy  Policy
	logger  *slog.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	applied map[string]Applied
	last    *Applied
}

// NewEngine creates an engine. bus may be nil.
func NewEngine(catalog Catalog, port Port, bus Publisher, policy Policy) *Engine {
	return &Engine{
		catalog: catalog,
		port:    port,
		bus:     bus,
		policy:  policy,
		logger:  logging.GetLogger("negotiation"),
		locks:   make(map[string]*sync.Mutex),
		applied: make(map[string]Applied),
	}
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// LastApplied returns the most recent successful write.
func (e *Engine) LastApplied() (Applied, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Applied{}, false
	}
	return *e.last, true
}

// Handle negotiates req against the selected device and applies the result.
// Failures are reported through the result and the bus; there are no retries.
func (e *Engine) Handle(ctx context.Context, req detection.Request) Result {
	logger := e.logger.With("request_id", req.ID, "track_id", req.TrackID, "requested", req.Format.String())

	snap := e.catalog.Snapshot()
	dev, ok := snap.Selected()
	if !ok {
		logger.Warn("No capable output device for format request")
		return e.reject(req, "", events.RejectNoDevice, OutcomeNoDevice, nil)
	}
	logger = logger.With("device_id", dev.ID)

	lock := e.deviceLock(dev.ID)
	lock.Lock()
	defer lock.Unlock()

	// The catalog refreshes asynchronously after a write; prefer what we
	// wrote when it is newer than the snapshot.
	e.mu.Lock()
	if a, ok := e.applied[dev.ID]; ok && a.At.After(snap.BuiltAt) {
		dev.Current = a.Format
	}
	e.mu.Unlock()

	m := Negotiate(req.Format, dev, e.policy)
	switch m.Decision {
	case DecisionNoMatch:
		logger.Warn("Device offers no matching format")
		return e.reject(req, dev.ID, events.RejectNoMatch, OutcomeNoMatch, nil)
	case DecisionUnchanged:
		logger.Info("Device already at requested format", "format", m.Format.String())
		metrics.RecordOutcome(string(OutcomeUnchanged))
		return Result{RequestID: req.ID, Outcome: OutcomeUnchanged, DeviceID: dev.ID, Format: m.Format, Fallback: m.Fallback}
	}

	start := time.Now()
	err := e.port.Apply(ctx, dev, m.Format)
	metrics.ObserveApply(time.Since(start).Seconds())
	if err != nil {
		logger.Error("Failed to apply format", "format", m.Format.String(), "error", err)
		res := e.reject(req, dev.ID, events.RejectWriteFailed, OutcomeFailed, err)
		res.Format = m.Format
		return res
	}

	now := time.Now()
	applied := Applied{RequestID: req.ID, DeviceID: dev.ID, Format: m.Format, Fallback: m.Fallback, At: now}
	e.mu.Lock()
	e.applied[dev.ID] = applied
	e.last = &applied
	e.mu.Unlock()

	logger.Info("Output format changed", "format", m.Format.String(), "fallback", m.Fallback,
		"duration", time.Since(start))
	metrics.RecordOutcome(string(OutcomeApplied))
	metrics.SetActiveFormat(dev.ID, m.Format)
	e.publish(events.FormatChangedEvent{
		RequestID: req.ID,
		DeviceID:  dev.ID,
		Format:    m.Format,
		Fallback:  m.Fallback,
		Timestamp: now.Format(time.RFC3339),
	})
	return Result{RequestID: req.ID, Outcome: OutcomeApplied, DeviceID: dev.ID, Format: m.Format, Fallback: m.Fallback}
}

func (e *Engine) reject(req detection.Request, deviceID, reason string, outcome Outcome, err error) Result {
	metrics.RecordOutcome(string(outcome))
	ev := events.FormatRejectedEvent{
		RequestID: req.ID,
		DeviceID:  deviceID,
		Format:    req.Format,
		Reason:    reason,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	e.publish(ev)
	return Result{RequestID: req.ID, Outcome: outcome, DeviceID: deviceID, Err: err}
}

func (e *Engine) deviceLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
