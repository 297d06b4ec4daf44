package devices

import (
	"context"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/formatsync/internal/format"
)

// Profile is a device catalog declared in TOML:
//
//	[[devices]]
//	id = "dac"
//	name = "USB DAC"
//	formats = ["24/44100/2", "24/48000/2", "24/96000/2", "32/192000/2"]
//	current = "24/44100/2"
type Profile struct {
	Devices []ProfileDevice `toml:"devices"`
}

// ProfileDevice is one declared device. Formats use the compact
// "bits/rate/channels[/tag]" notation.
type ProfileDevice struct {
	ID      string   `toml:"id"`
	Name    string   `toml:"name"`
	Formats []string `toml:"formats"`
	Current string   `toml:"current"`
}

// LoadProfile reads and validates a profile file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, NewError(ErrCodeInvalidProfile, "read "+path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates profile TOML.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, NewError(ErrCodeInvalidProfile, "decode profile", err)
	}

	seen := make(map[string]struct{}, len(p.Devices))
	for i, d := range p.Devices {
		if d.ID == "" {
			return Profile{}, NewError(ErrCodeInvalidProfile, fmt.Sprintf("device %d has no id", i), nil)
		}
		if _, dup := seen[d.ID]; dup {
			return Profile{}, NewError(ErrCodeInvalidProfile, "duplicate device id "+d.ID, nil)
		}
		seen[d.ID] = struct{}{}
	}
	return p, nil
}

// Records converts the profile into catalog records.
func (p Profile) Records() ([]Record, error) {
	records := make([]Record, 0, len(p.Devices))
	for _, d := range p.Devices {
		rec := Record{ID: d.ID, Name: d.Name}
		if rec.Name == "" {
			rec.Name = d.ID
		}
		for _, s := range d.Formats {
			f, err := format.Parse(s)
			if err != nil {
				return nil, NewError(ErrCodeInvalidProfile, "device "+d.ID, err)
			}
			rec.Formats = append(rec.Formats, f)
		}
		if d.Current != "" {
			f, err := format.Parse(d.Current)
			if err != nil {
				return nil, NewError(ErrCodeInvalidProfile, "device "+d.ID+" current", err)
			}
			rec.Current = f
		}
		records = append(records, rec)
	}
	return records, nil
}

// ProfileDetector lists the devices declared in a profile file. The file is
// read on every call so edits take effect on the next refresh.
type ProfileDetector struct {
	Path string
}

// NewProfileDetector returns a detector for the profile at path.
func NewProfileDetector(path string) *ProfileDetector {
	return &ProfileDetector{Path: path}
}

// Name implements Detector.
func (d *ProfileDetector) Name() string { return "profile" }

// ReadsCurrent reports false: a declared current format is only the
// starting state of the device.
func (d *ProfileDetector) ReadsCurrent() bool { return false }

// ListDevices implements Detector.
func (d *ProfileDetector) ListDevices(_ context.Context) ([]Record, error) {
	p, err := LoadProfile(d.Path)
	if err != nil {
		return nil, err
	}
	return p.Records()
}
