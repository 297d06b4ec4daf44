// Package negotiation maps requested formats onto what the selected output
// device supports and applies the result.
package negotiation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/smazurov/formatsync/internal/devices"
	"github.com/smazurov/formatsync/internal/format"
)

// Decision is the outcome of a pure negotiation.
type Decision int

const (
	DecisionNoMatch Decision = iota
	DecisionUnchanged
	DecisionApply
)

func (d Decision) String() string {
	switch d {
	case DecisionApply:
		return "apply"
	case DecisionUnchanged:
		return "unchanged"
	default:
		return "no-match"
	}
}

// Policy tunes negotiation.
type Policy struct {
	// BitDepthFallbacks lists substitute bit depths, tried in order, for a
	// requested bit depth the device does not offer.
	BitDepthFallbacks map[uint32][]uint32
}

// DefaultPolicy substitutes 24-bit for 16-bit content; many DACs no longer
// expose a 16-bit mode.
func DefaultPolicy() Policy {
	return Policy{BitDepthFallbacks: map[uint32][]uint32{16: {24}}}
}

// Match is the result of Negotiate.
type Match struct {
	Decision Decision
	Format   format.Descriptor // the device's own descriptor for the chosen mode
	Fallback bool
}

// Negotiate picks the device format for requested. It does not touch
// hardware.
func Negotiate(requested format.Descriptor, dev devices.Record, policy Policy) Match {
	chosen, ok := find(dev.Formats, requested)
	fallback := false
	if !ok {
		for _, bits := range policy.BitDepthFallbacks[requested.BitDepth] {
			if chosen, ok = find(dev.Formats, requested.WithBitDepth(bits)); ok {
				fallback = true
				break
			}
		}
	}
	if !ok {
		return Match{Decision: DecisionNoMatch}
	}

	if dev.Current.Valid() && dev.Current.SameAs(chosen) {
		return Match{Decision: DecisionUnchanged, Format: chosen, Fallback: fallback}
	}
	return Match{Decision: DecisionApply, Format: chosen, Fallback: fallback}
}

func find(formats []format.Descriptor, want format.Descriptor) (format.Descriptor, bool) {
	i := slices.IndexFunc(formats, want.Matches)
	if i < 0 {
		return format.Descriptor{}, false
	}
	return formats[i], true
}

// ParseFallbacks parses "from:to" pairs separated by commas, e.g. "16:24,16:32".
// Substitutes for the same depth keep their order.
func ParseFallbacks(s string) (map[uint32][]uint32, error) {
	out := make(map[uint32][]uint32)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid bit depth fallback %q, want from:to", pair)
		}
		f, err := strconv.ParseUint(strings.TrimSpace(from), 10, 32)
		if err != nil || f == 0 {
			return nil, fmt.Errorf("invalid bit depth %q", from)
		}
		t, err := strconv.ParseUint(strings.TrimSpace(to), 10, 32)
		if err != nil || t == 0 {
			return nil, fmt.Errorf("invalid bit depth %q", to)
		}
		out[uint32(f)] = append(out[uint32(f)], uint32(t))
	}
	return out, nil
}
