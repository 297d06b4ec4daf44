// Package pipeline connects log lines and now-playing notifications to the
// detection state machine and the negotiation engine.
//
// Lines are classified on the caller's goroutine. Inputs are folded in
// arrival order by a single goroutine, and emitted requests are applied by
// another goroutine through a bounded queue that drops the oldest request
// when full.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/formatsync/internal/classifier"
	"github.com/smazurov/formatsync/internal/detection"
	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/metrics"
	"github.com/smazurov/formatsync/internal/negotiation"
)

const (
	DefaultIngestQueueSize = 256
	DefaultApplyQueueSize  = 4
)

// lineUnrecognized labels lines without a signal in metrics.
const lineUnrecognized = "unrecognized"

// Engine handles format requests.
type Engine interface {
	Handle(ctx context.Context, req detection.Request) negotiation.Result
}

// Publisher receives pipeline events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Service.
type Options struct {
	Classifier  *classifier.Classifier
	Machine     *detection.Machine
	Engine      Engine
	Bus         Publisher
	IngestQueue int
	ApplyQueue  int
	Now         func() time.Time
	Logger      *slog.Logger
}

type item struct {
	in detection.Input
	at time.Time
}

// Service owns the detection machine and the apply queue.
type Service struct {
	classifier *classifier.Classifier
	machine    *detection.Machine
	engine     Engine
	bus        Publisher
	now        func() time.Time
	logger     *slog.Logger

	ingest chan item
	apply  chan detection.Request

	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool

	lines      atomic.Uint64
	signals    atomic.Uint64
	superseded atomic.Uint64
	lastTrack  string // owned by the fold goroutine
}

// Status is a point-in-time view for the status API.
type Status struct {
	Detection    detection.State
	Lines        uint64
	Signals      uint64
	Superseded   uint64
	IngestQueued int
	ApplyQueued  int
}

// New creates a stopped service.
func New(opts Options) *Service {
	if opts.Classifier == nil {
		opts.Classifier = classifier.Default()
	}
	if opts.Machine == nil {
		opts.Machine = detection.NewMachine(detection.Config{})
	}
	if opts.IngestQueue <= 0 {
		opts.IngestQueue = DefaultIngestQueueSize
	}
	if opts.ApplyQueue <= 0 {
		opts.ApplyQueue = DefaultApplyQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("pipeline")
	}
	return &Service{
		classifier: opts.Classifier,
		machine:    opts.Machine,
		engine:     opts.Engine,
		bus:        opts.Bus,
		now:        opts.Now,
		logger:     opts.Logger,
		ingest:     make(chan item, opts.IngestQueue),
		apply:      make(chan detection.Request, opts.ApplyQueue),
		done:       make(chan struct{}),
	}
}

// Start launches the fold and apply goroutines.
func (s *Service) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.foldLoop(ctx)
	go s.applyLoop(ctx)
	s.logger.Info("Pipeline started")
}

// Stop halts both goroutines. An apply in progress runs to completion.
func (s *Service) Stop() {
	if !s.started.Load() {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Pipeline stopped")
}

// OnLine classifies one raw log line and queues any signal it carries.
// It reports whether the line was recognized.
func (s *Service) OnLine(line string) bool {
	at := s.now()
	s.lines.Add(1)

	sig := s.classifier.Classify(line)
	if sig == nil {
		metrics.RecordLine(lineUnrecognized)
		return false
	}
	metrics.RecordLine(string(sig.Kind()))
	s.signals.Add(1)

	in, ok := detection.FromSignal(sig)
	if !ok {
		return false
	}
	s.logger.Debug("Signal recognized", "kind", sig.Kind(), "signal", sig)
	s.enqueue(item{in: in, at: at})
	return true
}

// OnNowPlayingChanged reports the externally observed track. A nil id means
// playback stopped.
func (s *Service) OnNowPlayingChanged(trackID *string, startedAt time.Time) {
	at := s.now()
	if trackID == nil {
		s.enqueue(item{in: detection.PlaybackStopped{}, at: at})
		return
	}
	s.enqueue(item{in: detection.TrackChanged{
		TrackID:   *trackID,
		Source:    detection.SourceExternal,
		StartedAt: startedAt,
	}, at: at})
}

// Inject folds an input directly; used by tests and tools.
func (s *Service) Inject(in detection.Input, at time.Time) {
	s.enqueue(item{in: in, at: at})
}

func (s *Service) enqueue(it item) {
	select {
	case s.ingest <- it:
	case <-s.done:
	}
}

// Status returns counters and a detection snapshot.
func (s *Service) Status() Status {
	return Status{
		Detection:    s.machine.Snapshot(),
		Lines:        s.lines.Load(),
		Signals:      s.signals.Load(),
		Superseded:   s.superseded.Load(),
		IngestQueued: len(s.ingest),
		ApplyQueued:  len(s.apply),
	}
}

func (s *Service) foldLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.ingest:
			s.fold(it)
		}
	}
}

func (s *Service) fold(it item) {
	reqs := s.machine.ApplyAt(it.in, it.at)

	if st := s.machine.Snapshot(); st.CurrentTrackID != s.lastTrack {
		s.lastTrack = st.CurrentTrackID
		source := detection.SourceLog
		if st.ExternalSource {
			source = detection.SourceExternal
		}
		s.logger.Info("Track changed", "track_id", st.CurrentTrackID, "source", source)
		s.publish(events.TrackChangedEvent{
			TrackID:   st.CurrentTrackID,
			Source:    string(source),
			Timestamp: it.at.Format(time.RFC3339),
		})
	}

	for _, req := range reqs {
		s.logger.Info("Format requested", "request_id", req.ID, "track_id", req.TrackID,
			"format", req.Format.String(), "reason", req.Reason)
		metrics.RecordRequest(string(req.Reason))
		s.publish(events.FormatRequestedEvent{
			RequestID: req.ID,
			TrackID:   req.TrackID,
			Format:    req.Format,
			Reason:    string(req.Reason),
			Timestamp: req.At.Format(time.RFC3339),
		})
		s.queueApply(req)
	}
}

// queueApply is only called from the fold goroutine.
func (s *Service) queueApply(req detection.Request) {
	for {
		select {
		case s.apply <- req:
			return
		default:
		}
		select {
		case old := <-s.apply:
			s.superseded.Add(1)
			metrics.RecordDroppedRequest()
			s.logger.Warn("Apply queue full, dropping superseded request",
				"request_id", old.ID, "format", old.Format.String())
		default:
		}
	}
}

func (s *Service) applyLoop(ctx context.Context) {
	defer s.wg.Done()
	if s.engine == nil {
		return
	}
	// Writes are never cancelled halfway.
	applyCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.apply:
			res := s.engine.Handle(applyCtx, req)
			s.logger.Debug("Request handled", "request_id", req.ID, "outcome", res.Outcome)
		}
	}
}

func (s *Service) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
