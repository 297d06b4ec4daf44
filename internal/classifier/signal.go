package classifier

import "github.com/smazurov/formatsync/internal/format"

// Kind identifies the variant of a Signal.
type Kind string

const (
	KindTrackChanged    Kind = "track-changed"
	KindFormatDescribed Kind = "format-described"
	KindAdvanceMarker   Kind = "advance-marker"
)

// Signal is one recognized fact extracted from a log line.
type Signal interface {
	Kind() Kind
}

// TrackChanged reports that a new piece of media began or resumed.
type TrackChanged struct {
	TrackID string
}

// FormatDescribed reports the physical format announced for media that is
// about to play or already playing.
type FormatDescribed struct {
	Format format.Descriptor
}

// MarkerKind distinguishes the two playback-advance markers.
type MarkerKind string

const (
	MarkerSkip    MarkerKind = "skip"
	MarkerAdvance MarkerKind = "advance"
)

// PlaybackAdvanceMarker reports that playback moved past a track boundary.
type PlaybackAdvanceMarker struct {
	Marker MarkerKind
}

func (TrackChanged) Kind() Kind          { return KindTrackChanged }
func (FormatDescribed) Kind() Kind       { return KindFormatDescribed }
func (PlaybackAdvanceMarker) Kind() Kind { return KindAdvanceMarker }
