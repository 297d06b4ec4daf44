package devices

import (
	"context"
	"slices"
	"time"

	"github.com/smazurov/formatsync/internal/format"
)

// MinBitDepth is the lowest bit depth a device must offer to be synchronized.
const MinBitDepth = 24

// Record describes one output device. Records are rebuilt on every refresh
// and must be treated as read-only.
type Record struct {
	ID      string              `json:"id" example:"hw:D10,0" doc:"Device identifier"`
	Name    string              `json:"name" example:"Topping D10" doc:"Human readable name"`
	Formats []format.Descriptor `json:"formats" doc:"Supported physical formats"`
	Current format.Descriptor   `json:"current" doc:"Active physical format, zero when unknown"`
}

// MaxBitDepth returns the deepest supported bit depth.
func (r Record) MaxBitDepth() uint32 {
	var maxBits uint32
	for _, f := range r.Formats {
		maxBits = max(maxBits, f.BitDepth)
	}
	return maxBits
}

// Supports reports whether f matches one of the device's formats.
func (r Record) Supports(f format.Descriptor) bool {
	return slices.ContainsFunc(r.Formats, f.Matches)
}

// Snapshot is an immutable view of the catalog.
type Snapshot struct {
	Devices    []Record  `json:"devices"`
	SelectedID string    `json:"selected_id"`
	BuiltAt    time.Time `json:"built_at"`
}

// Find returns the device with the given id.
func (s Snapshot) Find(id string) (Record, bool) {
	for _, d := range s.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Record{}, false
}

// Selected returns the selected device.
func (s Snapshot) Selected() (Record, bool) {
	if s.SelectedID == "" {
		return Record{}, false
	}
	return s.Find(s.SelectedID)
}

// Detector enumerates output devices.
type Detector interface {
	Name() string
	ListDevices(ctx context.Context) ([]Record, error)
}

// CurrentReader is implemented by detectors that may report a current
// format they did not read from the hardware. When ReadsCurrent is false the
// last applied format replaces the reported one.
type CurrentReader interface {
	ReadsCurrent() bool
}

func readsCurrent(d Detector) bool {
	if cr, ok := d.(CurrentReader); ok {
		return cr.ReadsCurrent()
	}
	return true
}
