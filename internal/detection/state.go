package detection

import (
	"slices"
	"time"

	"github.com/smazurov/formatsync/internal/format"
)

// Phase is the coarse position of the state machine.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAwaitingFormat Phase = "awaiting-format"
	PhaseTrackActive    Phase = "track-active"
)

// State is the complete detection state. The zero value is the initial state.
// Zero-valued descriptors and an empty track id mean "none".
type State struct {
	Phase            Phase
	CurrentTrackID   string
	Pending          format.Descriptor
	Committed        format.Descriptor
	Requested        []format.Descriptor
	TrackStartedAt   time.Time
	LastFormatSeenAt time.Time
	ExternalSource   bool
}

// HasTrack reports whether a current track is known.
func (s State) HasTrack() bool { return s.CurrentTrackID != "" }

// HasPending reports whether a pending format is held.
func (s State) HasPending() bool { return s.Pending.Valid() }

// HasCommitted reports whether a format was requested for the current track.
func (s State) HasCommitted() bool { return s.Committed.Valid() }

func (s State) requested(f format.Descriptor) bool {
	return slices.ContainsFunc(s.Requested, f.Equal)
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	s.Requested = slices.Clone(s.Requested)
	return s
}

func (s State) phase() Phase {
	if s.Phase == "" {
		return PhaseIdle
	}
	return s.Phase
}
