package alsa

import (
	"strconv"
	"strings"
)

// Card is one entry of /proc/asound/cards.
type Card struct {
	Number   int
	ID       string // short id, e.g. "D10"
	Driver   string // e.g. "USB-Audio"
	Name     string // e.g. "Topping D10"
	LongName string
}

// StreamFormat is one altsetting of a playback stream descriptor.
type StreamFormat struct {
	Format   string // sample encoding, e.g. "S24_3LE"
	Channels int
	Rates    []int
	Bits     int // valid bits when the descriptor reports them
}

// BitDepth returns the number of significant bits per sample.
func (f StreamFormat) BitDepth() int {
	if f.Bits > 0 {
		return f.Bits
	}
	return FormatBits(f.Format)
}

// HWParams is the parsed content of an open PCM's hw_params file.
type HWParams struct {
	Format   string
	Channels int
	Rate     int
}

// Device is a playback PCM together with its capabilities.
type Device struct {
	Card         Card
	DeviceNumber int
	Formats      []StreamFormat
	Current      *HWParams // nil when the PCM is closed
}

// ALSADevice returns the stable hw device string, keyed by card id.
func (d Device) ALSADevice() string {
	return FormatALSADevice(d.Card.ID, d.DeviceNumber)
}

// FormatALSADevice creates an ALSA device string such as "hw:D10,0".
func FormatALSADevice(card string, device int) string {
	return "hw:" + card + "," + strconv.Itoa(device)
}

// FormatBits returns the sample width for an ALSA format name, 0 when unknown.
func FormatBits(name string) int {
	name = strings.ToUpper(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(name, "FLOAT64"):
		return 64
	case strings.HasPrefix(name, "FLOAT"):
		return 32
	case strings.HasPrefix(name, "DSD_U32"):
		return 32
	case strings.HasPrefix(name, "DSD_U16"):
		return 16
	case strings.HasPrefix(name, "DSD_U8"):
		return 8
	}

	// [SU]<bits>[_3][LE|BE]
	if len(name) < 2 || (name[0] != 'S' && name[0] != 'U') {
		return 0
	}
	end := 1
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	bits, err := strconv.Atoi(name[1:end])
	if err != nil {
		return 0
	}
	// S20_LE and S24_LE are padded in 32-bit containers but carry 20/24 bits.
	return bits
}

// CommonSampleRates is used to expand continuous rate ranges.
var CommonSampleRates = []int{
	8000, 11025, 16000, 22050, 32000, 44100, 48000, 64000, 88200, 96000,
	176400, 192000, 352800, 384000, 705600, 768000,
}

func ratesInRange(lo, hi int) []int {
	var out []int
	for _, r := range CommonSampleRates {
		if r >= lo && r <= hi {
			out = append(out, r)
		}
	}
	return out
}
