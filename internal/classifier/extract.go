package classifier

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	bitDepthPattern   = regexp.MustCompile(`sdBitDepth = (\d+)`)
	sampleRatePattern = regexp.MustCompile(`asbdSampleRate = (\d+(?:\.\d+)?)\s*(kHz|Hz)?`)
	channelsPattern   = regexp.MustCompile(`asbdNumChannels = (\d+)`)
	formatTagPattern  = regexp.MustCompile(`asbdFormatID = (\w+)`)
)

// BitDepth extracts the source bit depth. Only the first occurrence counts.
func BitDepth(line string) (uint32, bool) {
	m := bitDepthPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint32(v), true
}

// SampleRate extracts the stream sample rate in Hz. The log reports kHz;
// an explicit "Hz" unit, or a bare value of 1000 or more, is taken as Hz.
func SampleRate(line string) (float64, bool) {
	m := sampleRatePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}

	switch {
	case m[2] == "Hz":
	case m[2] == "kHz", v < 1000:
		v *= 1000
	}
	return v, true
}

// Channels extracts the stream channel count.
func Channels(line string) (uint32, bool) {
	m := channelsPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint32(v), true
}

// FormatTag extracts the stream codec identifier.
func FormatTag(line string) (string, bool) {
	m := formatTagPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// redacted reports whether the OS replaced the value with a privacy placeholder.
func redacted(id string) bool {
	return id == "" || strings.EqualFold(id, "<private>") || strings.EqualFold(id, "private")
}
