// Package classifier maps single log lines to recognized playback signals.
//
// Classification is pure and stateless: a Classifier may be shared between
// goroutines and Classify never fails. Lines that are not recognized, and
// format lines with any sub-field missing, yield nil.
package classifier

import (
	"fmt"
	"regexp"

	"github.com/smazurov/formatsync/internal/format"
)

// Default patterns target the Music player's ampplay log category.
var (
	DefaultFormatLine = `mediaFormatinfo.*\blossless,`

	DefaultTrackPatterns = []string{
		`\b(?:setCurrentItem|currentItemChanged|nowPlayingItemChanged|playingItemDidChange)\b[^'"]*['"]([^'"]+)['"]`,
		`\b(?:itemURL|storeURL) = ([^\s,]+)`,
	}

	DefaultSkipPatterns = []string{
		`\b(?:skipToNextItem|skipForward|userSkippedItem)\b`,
	}

	DefaultAdvancePatterns = []string{
		`\b(?:itemDidPlayToEnd|didAdvanceToNextItem|advanceToNextItem)\b`,
	}
)

// Patterns is the uncompiled, configurable form of Rules.
type Patterns struct {
	FormatLine string
	Track      []string
	Skip       []string
	Advance    []string
}

// DefaultPatterns returns a fresh copy of the built-in patterns.
func DefaultPatterns() Patterns {
	return Patterns{
		FormatLine: DefaultFormatLine,
		Track:      append([]string(nil), DefaultTrackPatterns...),
		Skip:       append([]string(nil), DefaultSkipPatterns...),
		Advance:    append([]string(nil), DefaultAdvancePatterns...),
	}
}

// Rules is the compiled pattern set.
type Rules struct {
	formatLine *regexp.Regexp
	track      []*regexp.Regexp
	skip       []*regexp.Regexp
	advance    []*regexp.Regexp
}

// Compile validates and compiles p. Track patterns must capture the
// identifier in their first group.
func Compile(p Patterns) (Rules, error) {
	var r Rules
	var err error

	if p.FormatLine == "" {
		p.FormatLine = DefaultFormatLine
	}
	if r.formatLine, err = regexp.Compile(p.FormatLine); err != nil {
		return Rules{}, fmt.Errorf("format line pattern: %w", err)
	}

	for _, s := range p.Track {
		re, err := regexp.Compile(s)
		if err != nil {
			return Rules{}, fmt.Errorf("track pattern %q: %w", s, err)
		}
		if re.NumSubexp() < 1 {
			return Rules{}, fmt.Errorf("track pattern %q: no capture group for the track id", s)
		}
		r.track = append(r.track, re)
	}

	if r.skip, err = compileAll("skip", p.Skip); err != nil {
		return Rules{}, err
	}
	if r.advance, err = compileAll("advance", p.Advance); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func compileAll(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, s := range patterns {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("%s pattern %q: %w", kind, s, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Classifier applies a compiled rule set.
type Classifier struct {
	rules Rules
}

// New returns a Classifier for the given rules.
func New(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// NewFromPatterns compiles p and returns a Classifier.
func NewFromPatterns(p Patterns) (*Classifier, error) {
	rules, err := Compile(p)
	if err != nil {
		return nil, err
	}
	return New(rules), nil
}

var defaultClassifier = func() *Classifier {
	c, err := NewFromPatterns(DefaultPatterns())
	if err != nil {
		panic(err)
	}
	return c
}()

// Default returns the classifier built from the default patterns.
func Default() *Classifier {
	return defaultClassifier
}

// Classify classifies line with the default rules.
func Classify(line string) Signal {
	return defaultClassifier.Classify(line)
}

// Classify returns the signal carried by line, or nil.
//
// A format line wins over the other families when a line matches several.
func (c *Classifier) Classify(line string) Signal {
	if c.rules.formatLine.MatchString(line) {
		f, ok := describe(line)
		if !ok {
			return nil
		}
		return FormatDescribed{Format: f}
	}

	for _, re := range c.rules.track {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id := firstGroup(m)
		if redacted(id) {
			return nil
		}
		return TrackChanged{TrackID: id}
	}

	for _, re := range c.rules.skip {
		if re.MatchString(line) {
			return PlaybackAdvanceMarker{Marker: MarkerSkip}
		}
	}
	for _, re := range c.rules.advance {
		if re.MatchString(line) {
			return PlaybackAdvanceMarker{Marker: MarkerAdvance}
		}
	}
	return nil
}

func describe(line string) (format.Descriptor, bool) {
	bits, ok := BitDepth(line)
	if !ok {
		return format.Descriptor{}, false
	}
	rate, ok := SampleRate(line)
	if !ok {
		return format.Descriptor{}, false
	}
	channels, ok := Channels(line)
	if !ok {
		return format.Descriptor{}, false
	}
	tag, ok := FormatTag(line)
	if !ok {
		return format.Descriptor{}, false
	}

	f := format.Descriptor{BitDepth: bits, SampleRateHz: rate, Channels: channels, Tag: tag}
	return f, f.Valid()
}

// firstGroup returns the first non-empty capture, so patterns may use
// alternation across several groups.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}
