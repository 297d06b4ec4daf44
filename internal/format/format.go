// Package format defines the audio sample format descriptor shared by the
// log classifier, the detection state machine and the negotiation engine.
package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultTag is used for device formats that carry no codec identifier.
const DefaultTag = "lpcm"

// Descriptor describes a physical audio sample format.
type Descriptor struct {
	BitDepth     uint32  `json:"bit_depth" toml:"bit_depth" example:"24" doc:"Bits per sample"`
	SampleRateHz float64 `json:"sample_rate_hz" toml:"sample_rate_hz" example:"96000" doc:"Sample rate in Hz"`
	Channels     uint32  `json:"channels" toml:"channels" example:"2" doc:"Channel count"`
	Tag          string  `json:"format_tag" toml:"format_tag" example:"alac" doc:"Codec or sample encoding identifier"`
}

// Valid reports whether every field is populated.
func (d Descriptor) Valid() bool {
	return d.BitDepth > 0 && d.SampleRateHz > 0 && d.Channels > 0 && d.Tag != ""
}

// Equal is exact equality on all four fields. Detection uses it to decide
// whether a format has already been requested.
func (d Descriptor) Equal(o Descriptor) bool {
	return d == o
}

// SameAs compares the physical format with the sample rate rounded to the
// nearest Hz. The tag is ignored. Used to decide whether hardware needs a write.
func (d Descriptor) SameAs(o Descriptor) bool {
	return d.BitDepth == o.BitDepth &&
		d.Channels == o.Channels &&
		math.Round(d.SampleRateHz) == math.Round(o.SampleRateHz)
}

// Matches compares the physical format with the sample rate truncated to an
// integer. The tag is ignored. Used when searching a device's capabilities.
func (d Descriptor) Matches(o Descriptor) bool {
	return d.BitDepth == o.BitDepth &&
		d.Channels == o.Channels &&
		uint64(d.SampleRateHz) == uint64(o.SampleRateHz)
}

// WithBitDepth returns a copy with the bit depth replaced.
func (d Descriptor) WithBitDepth(bits uint32) Descriptor {
	d.BitDepth = bits
	return d
}

// KHz returns the sample rate in kilohertz.
func (d Descriptor) KHz() float64 {
	return d.SampleRateHz / 1000
}

func (d Descriptor) String() string {
	if !d.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d-bit/%s kHz/%dch %s",
		d.BitDepth, strconv.FormatFloat(d.KHz(), 'f', -1, 64), d.Channels, d.Tag)
}

// ErrInvalidNotation is returned by Parse for malformed input.
var ErrInvalidNotation = errors.New("invalid format notation")

// Parse reads the compact notation "bits/rate/channels[/tag]", for example
// "24/96000/2" or "16/44100/2/alac". Rates below 1000 are taken as kHz.
func Parse(s string) (Descriptor, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 3 || len(parts) > 4 {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidNotation, s)
	}

	bits, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: bit depth %q", ErrInvalidNotation, parts[0])
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: sample rate %q", ErrInvalidNotation, parts[1])
	}
	if rate < 1000 {
		rate *= 1000
	}
	channels, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 32)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: channels %q", ErrInvalidNotation, parts[2])
	}

	tag := DefaultTag
	if len(parts) == 4 && strings.TrimSpace(parts[3]) != "" {
		tag = strings.TrimSpace(parts[3])
	}

	d := Descriptor{
		BitDepth:     uint32(bits),
		SampleRateHz: rate,
		Channels:     uint32(channels),
		Tag:          tag,
	}
	if !d.Valid() {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidNotation, s)
	}
	return d, nil
}

// Notation is the inverse of Parse.
func (d Descriptor) Notation() string {
	return fmt.Sprintf("%d/%s/%d/%s",
		d.BitDepth, strconv.FormatFloat(d.SampleRateHz, 'f', -1, 64), d.Channels, d.Tag)
}
