package devices

import (
	"context"

	"github.com/smazurov/formatsync/internal/format"
	"github.com/smazurov/formatsync/pkg/linuxav/alsa"
)

// ALSADetector lists USB playback devices from /proc/asound.
type ALSADetector struct {
	fs alsa.ProcFS
}

// NewALSADetector reads from root, or /proc/asound when root is empty.
func NewALSADetector(root string) *ALSADetector {
	return &ALSADetector{fs: alsa.ProcFS{Root: root}}
}

// Name implements Detector.
func (d *ALSADetector) Name() string { return "alsa" }

// ListDevices implements Detector.
func (d *ALSADetector) ListDevices(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devs, err := d.fs.PlaybackDevices()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(devs))
	for _, dev := range devs {
		records = append(records, recordFromALSA(dev))
	}
	return records, nil
}

func recordFromALSA(dev alsa.Device) Record {
	rec := Record{
		ID:   dev.ALSADevice(),
		Name: dev.Card.Name,
	}

	seen := make(map[format.Descriptor]struct{})
	for _, sf := range dev.Formats {
		bits := sf.BitDepth()
		if bits <= 0 || sf.Channels <= 0 {
			continue
		}
		for _, rate := range sf.Rates {
			f := format.Descriptor{
				BitDepth:     uint32(bits),
				SampleRateHz: float64(rate),
				Channels:     uint32(sf.Channels),
				Tag:          format.DefaultTag,
			}
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			rec.Formats = append(rec.Formats, f)
		}
	}

	if hw := dev.Current; hw != nil {
		bits := uint32(alsa.FormatBits(hw.Format))
		// Container formats (S32_LE carrying 24 bits) report the padded width;
		// prefer the valid-bits value from the matching descriptor.
		for _, sf := range dev.Formats {
			if sf.Format == hw.Format && sf.Channels == hw.Channels && sf.BitDepth() > 0 {
				bits = uint32(sf.BitDepth())
				break
			}
		}
		rec.Current = format.Descriptor{
			BitDepth:     bits,
			SampleRateHz: float64(hw.Rate),
			Channels:     uint32(hw.Channels),
			Tag:          format.DefaultTag,
		}
	}
	return rec
}
