package detection

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/formatsync/internal/classifier"
	"github.com/smazurov/formatsync/internal/format"
)

var (
	t0     = time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	hiRes  = format.Descriptor{BitDepth: 24, SampleRateHz: 96000, Channels: 2, Tag: "alac"}
	cdRes  = format.Descriptor{BitDepth: 16, SampleRateHz: 44100, Channels: 2, Tag: "alac"}
	hiRes2 = format.Descriptor{BitDepth: 24, SampleRateHz: 192000, Channels: 2, Tag: "alac"}
)

type step struct {
	in Input
	at time.Duration
}

func run(t *testing.T, steps ...step) (State, []Request) {
	t.Helper()
	var s State
	var all []Request
	for _, st := range steps {
		var reqs []Request
		s, reqs = Fold(s, st.in, t0.Add(st.at), Config{})
		all = append(all, reqs...)
	}
	return s, all
}

func TestFormatBeforeTrackEmitsOnTrackChange(t *testing.T) {
	s, reqs := run(t,
		step{FormatDescribed{hiRes}, 0},
		step{TrackChanged{TrackID: "trackA", Source: SourceLog}, 2 * time.Second},
	)

	require.Len(t, reqs, 1)
	assert.Equal(t, hiRes, reqs[0].Format)
	assert.Equal(t, "trackA", reqs[0].TrackID)
	assert.Equal(t, ReasonPendingOnTrackChange, reqs[0].Reason)
	assert.Equal(t, PhaseTrackActive, s.Phase)
	assert.False(t, s.HasPending())
	assert.Equal(t, hiRes, s.Committed)
}

func TestDuplicateAnnouncementsSuppressed(t *testing.T) {
	_, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{hiRes}, 500 * time.Millisecond},
		step{FormatDescribed{hiRes}, time.Second},
	)

	require.Len(t, reqs, 1)
	assert.Equal(t, ReasonDescribedInWindow, reqs[0].Reason)
}

func TestCorrectionInsideWindow(t *testing.T) {
	_, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{cdRes}, time.Second},
		step{FormatDescribed{hiRes}, 3 * time.Second},
		// Flapping back to an already-requested format is not re-emitted.
		step{FormatDescribed{cdRes}, 4 * time.Second},
	)

	require.Len(t, reqs, 2)
	assert.Equal(t, cdRes, reqs[0].Format)
	assert.Equal(t, hiRes, reqs[1].Format)
	assert.Equal(t, ReasonCorrectedInWindow, reqs[1].Reason)
}

func TestLateAnnouncementQueuedForNextTrack(t *testing.T) {
	s, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{hiRes}, time.Second},
		step{FormatDescribed{hiRes}, 10 * time.Second},
	)

	require.Len(t, reqs, 1)
	assert.Equal(t, hiRes, s.Pending)
	assert.Equal(t, "trackA", s.CurrentTrackID)

	s, reqs = Fold(s, TrackChanged{TrackID: "trackB"}, t0.Add(12*time.Second), Config{})
	require.Len(t, reqs, 1)
	assert.Equal(t, "trackB", reqs[0].TrackID)
	assert.Equal(t, hiRes, reqs[0].Format)
	assert.False(t, s.HasPending())
}

func TestWindowIsConfigurable(t *testing.T) {
	var s State
	cfg := Config{DebounceWindow: 20 * time.Second}

	s, _ = Fold(s, TrackChanged{TrackID: "trackA"}, t0, cfg)
	_, reqs := Fold(s, FormatDescribed{hiRes}, t0.Add(10*time.Second), cfg)
	require.Len(t, reqs, 1)
	assert.Equal(t, ReasonDescribedInWindow, reqs[0].Reason)
}

func TestFormatWithoutTrackIsPending(t *testing.T) {
	s, reqs := run(t, step{FormatDescribed{hiRes}, 0})
	assert.Empty(t, reqs)
	assert.Equal(t, hiRes, s.Pending)
	assert.Equal(t, PhaseIdle, s.Phase)

	// A newer announcement replaces the older one.
	s, _ = Fold(s, FormatDescribed{cdRes}, t0.Add(time.Second), Config{})
	assert.Equal(t, cdRes, s.Pending)
}

func TestInvalidFormatDropped(t *testing.T) {
	s, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{format.Descriptor{BitDepth: 24, Channels: 2, Tag: "alac"}}, time.Second},
	)
	assert.Empty(t, reqs)
	assert.False(t, s.HasPending())
	assert.True(t, s.LastFormatSeenAt.IsZero())
	assert.Equal(t, PhaseAwaitingFormat, s.Phase)
}

func TestSameTrackIsNotAChange(t *testing.T) {
	s, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{hiRes}, time.Second},
		step{TrackChanged{TrackID: "trackA"}, 2 * time.Second},
	)
	require.Len(t, reqs, 1)
	assert.Equal(t, hiRes, s.Committed)
	assert.Equal(t, t0, s.TrackStartedAt)
}

func TestTrackChangeClearsCommitted(t *testing.T) {
	s, _ := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{hiRes}, time.Second},
		step{TrackChanged{TrackID: "trackB"}, 30 * time.Second},
	)
	assert.False(t, s.HasCommitted())
	assert.Empty(t, s.Requested)
	assert.Equal(t, PhaseAwaitingFormat, s.Phase)

	// The same format for a new track is a new (track, format) pair.
	_, reqs := Fold(s, FormatDescribed{hiRes}, t0.Add(31*time.Second), Config{})
	require.Len(t, reqs, 1)
	assert.Equal(t, "trackB", reqs[0].TrackID)
}

func TestExternalSourceIsAuthoritative(t *testing.T) {
	started := t0.Add(-time.Second)
	s, reqs := run(t,
		step{TrackChanged{TrackID: "store://1", Source: SourceExternal, StartedAt: started}, 0},
		step{TrackChanged{TrackID: "log title", Source: SourceLog}, time.Second},
		step{FormatDescribed{hiRes}, 20 * time.Second},
		step{AdvanceMarker{Marker: classifier.MarkerAdvance}, 21 * time.Second},
	)

	assert.Empty(t, reqs)
	assert.Equal(t, "store://1", s.CurrentTrackID)
	assert.Equal(t, started, s.TrackStartedAt)
	assert.True(t, s.ExternalSource)
	assert.Equal(t, hiRes, s.Pending)
}

func TestPlaybackStoppedKeepsPending(t *testing.T) {
	s, _ := run(t,
		step{TrackChanged{TrackID: "trackA", Source: SourceExternal}, 0},
		step{FormatDescribed{cdRes}, time.Second},
		step{FormatDescribed{hiRes}, 20 * time.Second},
		step{PlaybackStopped{}, 25 * time.Second},
	)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, s.HasTrack())
	assert.False(t, s.HasCommitted())
	assert.Equal(t, hiRes, s.Pending)

	// Resuming the same track after a stop counts as a change.
	_, reqs := Fold(s, TrackChanged{TrackID: "trackA", Source: SourceExternal}, t0.Add(30*time.Second), Config{})
	require.Len(t, reqs, 1)
	assert.Equal(t, hiRes, reqs[0].Format)
}

func TestAdvanceMarkerCommitsPending(t *testing.T) {
	s, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{cdRes}, time.Second},
		step{FormatDescribed{hiRes2}, 60 * time.Second},
		step{AdvanceMarker{Marker: classifier.MarkerAdvance}, 62 * time.Second},
	)

	require.Len(t, reqs, 2)
	assert.Equal(t, hiRes2, reqs[1].Format)
	assert.Equal(t, ReasonAdvanceMarker, reqs[1].Reason)
	assert.False(t, s.HasPending())
	assert.Equal(t, t0.Add(62*time.Second), s.TrackStartedAt)

	// Without a pending format a marker is a no-op.
	_, reqs = Fold(s, AdvanceMarker{Marker: classifier.MarkerSkip}, t0.Add(70*time.Second), Config{})
	assert.Empty(t, reqs)
}

func TestAdvanceMarkerDoesNotRepeatRequestedFormat(t *testing.T) {
	s, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{hiRes}, time.Second},
		step{FormatDescribed{hiRes}, 10 * time.Second},
		step{AdvanceMarker{Marker: classifier.MarkerAdvance}, 11 * time.Second},
	)

	require.Len(t, reqs, 1)
	assert.Equal(t, ReasonDescribedInWindow, reqs[0].Reason)
	assert.False(t, s.HasPending())
	assert.Equal(t, hiRes, s.Committed)

	// A later correction to the same format stays suppressed
	_, reqs = Fold(s, FormatDescribed{hiRes}, t0.Add(12*time.Second), Config{})
	assert.Empty(t, reqs)
}

func TestAdvanceMarkerKeepsRequestedSet(t *testing.T) {
	s, reqs := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{cdRes}, time.Second},
		step{FormatDescribed{hiRes}, 20 * time.Second},
		step{AdvanceMarker{Marker: classifier.MarkerSkip}, 21 * time.Second},
	)
	require.Len(t, reqs, 2)
	assert.Equal(t, []format.Descriptor{cdRes, hiRes}, s.Requested)

	// Flapping back inside the new segment is not re-emitted
	_, reqs = Fold(s, FormatDescribed{cdRes}, t0.Add(22*time.Second), Config{})
	assert.Empty(t, reqs)
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	s, _ := run(t,
		step{TrackChanged{TrackID: "trackA"}, 0},
		step{FormatDescribed{cdRes}, time.Second},
	)
	before := s.Clone()

	_, _ = Fold(s, FormatDescribed{hiRes}, t0.Add(2*time.Second), Config{})
	assert.Equal(t, before, s)
}

func TestAtMostOneRequestPerTrackAndFormat(t *testing.T) {
	formats := []format.Descriptor{hiRes, cdRes, hiRes2}
	tracks := []string{"a", "b"}

	// Deterministic pseudo-random walk over inputs.
	seed := uint32(7)
	next := func(n int) int {
		seed = seed*1664525 + 1013904223
		return int(seed>>16) % n
	}

	var s State
	seen := make(map[string]int)
	at := t0
	for i := 0; i < 2000; i++ {
		at = at.Add(time.Duration(next(4000)) * time.Millisecond)
		var in Input
		switch next(4) {
		case 0:
			in = TrackChanged{TrackID: tracks[next(len(tracks))]}
		case 1:
			in = AdvanceMarker{Marker: classifier.MarkerSkip}
		default:
			in = FormatDescribed{formats[next(len(formats))]}
		}

		prevTrack := s.CurrentTrackID
		var reqs []Request
		s, reqs = Fold(s, in, at, Config{})
		if s.CurrentTrackID != prevTrack {
			// A new track starts a fresh set of pairs.
			for k := range seen {
				delete(seen, k)
			}
		}
		for _, r := range reqs {
			key := fmt.Sprintf("%s|%s", r.TrackID, r.Format.Notation())
			seen[key]++
			assert.LessOrEqual(t, seen[key], 1, "duplicate request %s at step %d", key, i)
		}
	}
}

func TestFromSignal(t *testing.T) {
	in, ok := FromSignal(classifier.TrackChanged{TrackID: "x"})
	require.True(t, ok)
	assert.Equal(t, TrackChanged{TrackID: "x", Source: SourceLog}, in)

	in, ok = FromSignal(classifier.FormatDescribed{Format: hiRes})
	require.True(t, ok)
	assert.Equal(t, FormatDescribed{Format: hiRes}, in)

	in, ok = FromSignal(classifier.PlaybackAdvanceMarker{Marker: classifier.MarkerSkip})
	require.True(t, ok)
	assert.Equal(t, AdvanceMarker{Marker: classifier.MarkerSkip}, in)

	_, ok = FromSignal(nil)
	assert.False(t, ok)
}
