// Package detection turns classified playback signals into format requests.
//
// Fold is the pure transition function; it performs no I/O and reads no
// clock. Machine owns a State and serializes folds behind a mutex.
package detection

import (
	"slices"
	"time"

	"github.com/smazurov/formatsync/internal/format"
)

// DefaultDebounceWindow is how long after a track starts a format
// announcement is still attributed to that track.
const DefaultDebounceWindow = 5 * time.Second

// Reason explains why a request was emitted.
type Reason string

const (
	ReasonPendingOnTrackChange Reason = "pending-on-track-change"
	ReasonDescribedInWindow    Reason = "described-in-window"
	ReasonCorrectedInWindow    Reason = "corrected-in-window"
	ReasonAdvanceMarker        Reason = "advance-marker"
)

// Request asks for the output device to be switched to Format for TrackID.
// ID is assigned by Machine; Fold leaves it empty.
type Request struct {
	ID      string
	TrackID string
	Format  format.Descriptor
	Reason  Reason
	At      time.Time
}

// Config tunes the fold.
type Config struct {
	DebounceWindow time.Duration
}

func (c Config) window() time.Duration {
	if c.DebounceWindow <= 0 {
		return DefaultDebounceWindow
	}
	return c.DebounceWindow
}

// Fold applies in to s at time at and returns the next state together with
// any requests to emit. s is not modified.
func Fold(s State, in Input, at time.Time, cfg Config) (State, []Request) {
	s = s.Clone()
	s.Phase = s.phase()

	switch in := in.(type) {
	case TrackChanged:
		return foldTrackChanged(s, in, at)
	case PlaybackStopped:
		s.ExternalSource = true
		s.CurrentTrackID = ""
		s.Committed = format.Descriptor{}
		s.Requested = nil
		s.Phase = PhaseIdle
		return s, nil
	case FormatDescribed:
		return foldFormatDescribed(s, in.Format, at, cfg)
	case AdvanceMarker:
		return foldAdvanceMarker(s, at)
	default:
		return s, nil
	}
}

func foldTrackChanged(s State, in TrackChanged, at time.Time) (State, []Request) {
	if in.TrackID == "" {
		return s, nil
	}
	switch in.Source {
	case SourceExternal:
		s.ExternalSource = true
	default:
		if s.ExternalSource {
			return s, nil
		}
	}
	if in.TrackID == s.CurrentTrackID {
		return s, nil
	}

	started := in.StartedAt
	if started.IsZero() {
		started = at
	}

	s.CurrentTrackID = in.TrackID
	s.TrackStartedAt = started
	s.Committed = format.Descriptor{}
	s.Requested = nil

	if !s.HasPending() {
		s.Phase = PhaseAwaitingFormat
		return s, nil
	}
	return commitPending(s, ReasonPendingOnTrackChange, at)
}

func foldFormatDescribed(s State, f format.Descriptor, at time.Time, cfg Config) (State, []Request) {
	if !f.Valid() {
		return s, nil
	}
	s.LastFormatSeenAt = at

	if !s.HasTrack() || !withinWindow(s.TrackStartedAt, at, cfg.window()) {
		s.Pending = f
		return s, nil
	}

	reason := ReasonDescribedInWindow
	if s.HasCommitted() {
		if s.Committed.Equal(f) || s.requested(f) {
			return s, nil
		}
		reason = ReasonCorrectedInWindow
	}
	return commit(s, f, reason, at)
}

func foldAdvanceMarker(s State, at time.Time) (State, []Request) {
	if s.ExternalSource || !s.HasPending() {
		return s, nil
	}
	if s.requested(s.Pending) {
		// Requests stay unique per (track, format) across segments.
		s.Pending = format.Descriptor{}
		return s, nil
	}
	// The marker opens a new window for late corrections of the committed format.
	s.TrackStartedAt = at
	s.Committed = format.Descriptor{}
	return commitPending(s, ReasonAdvanceMarker, at)
}

func commitPending(s State, reason Reason, at time.Time) (State, []Request) {
	f := s.Pending
	s.Pending = format.Descriptor{}
	return commit(s, f, reason, at)
}

func commit(s State, f format.Descriptor, reason Reason, at time.Time) (State, []Request) {
	s.Committed = f
	s.Requested = append(slices.Clone(s.Requested), f)
	s.Phase = PhaseTrackActive
	return s, []Request{{
		TrackID: s.CurrentTrackID,
		Format:  f,
		Reason:  reason,
		At:      at,
	}}
}

// withinWindow treats announcements that precede the track start as inside it.
func withinWindow(started, at time.Time, window time.Duration) bool {
	return at.Sub(started) <= window
}
