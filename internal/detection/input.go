package detection

import (
	"time"

	"github.com/smazurov/formatsync/internal/classifier"
	"github.com/smazurov/formatsync/internal/format"
)

// Source identifies where a track identity came from.
type Source string

const (
	SourceLog      Source = "log"
	SourceExternal Source = "external"
)

// Input is one event folded into the state machine.
type Input interface {
	isInput()
}

// TrackChanged announces a track identity. A zero StartedAt means "when folded".
type TrackChanged struct {
	TrackID   string
	Source    Source
	StartedAt time.Time
}

// PlaybackStopped is the external now-playing observer reporting no track.
type PlaybackStopped struct{}

// FormatDescribed carries a format announced by the log.
type FormatDescribed struct {
	Format format.Descriptor
}

// AdvanceMarker is a log-derived track boundary.
type AdvanceMarker struct {
	Marker classifier.MarkerKind
}

func (TrackChanged) isInput()    {}
func (PlaybackStopped) isInput() {}
func (FormatDescribed) isInput() {}
func (AdvanceMarker) isInput()   {}

// FromSignal converts a classifier signal into an input. Log-derived track
// changes are tagged SourceLog.
func FromSignal(sig classifier.Signal) (Input, bool) {
	switch s := sig.(type) {
	case classifier.TrackChanged:
		return TrackChanged{TrackID: s.TrackID, Source: SourceLog}, true
	case classifier.FormatDescribed:
		return FormatDescribed{Format: s.Format}, true
	case classifier.PlaybackAdvanceMarker:
		return AdvanceMarker{Marker: s.Marker}, true
	default:
		return nil, false
	}
}
