package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/formatsync/internal/format"
)

const realFormatLine = `2024-05-01 21:14:03.512 Df Music[812:1f0a3] [com.apple.Music:ampplay] play> cm>> mediaFormatinfo '<private>' , songEnhanced, audioCapabilities: 0x10, 0x10, asbdFormatID = qlac, sdFormatID = alac, high res lossless, asbdNumChannels = 2, sdNumChannels = 2, sdBitDepth = 24 bit, asbdSampleRate = 96.0 kHz, is not rendering spatial audio`

func TestClassifyFormatLine(t *testing.T) {
	sig := Classify(realFormatLine)
	require.NotNil(t, sig)

	fd, ok := sig.(FormatDescribed)
	require.True(t, ok, "expected FormatDescribed, got %T", sig)
	assert.Equal(t, format.Descriptor{BitDepth: 24, SampleRateHz: 96000, Channels: 2, Tag: "qlac"}, fd.Format)
	assert.Equal(t, KindFormatDescribed, sig.Kind())
}

func TestClassifyScenarioLine(t *testing.T) {
	line := ".. mediaFormatinfo .. lossless, asbdFormatID = alac, asbdNumChannels = 2, sdBitDepth = 24 bit, asbdSampleRate = 96.0 kHz .."

	sig := Classify(line)
	require.IsType(t, FormatDescribed{}, sig)
	assert.Equal(t,
		format.Descriptor{BitDepth: 24, SampleRateHz: 96000, Channels: 2, Tag: "alac"},
		sig.(FormatDescribed).Format)
}

func TestClassifyMalformedFormatLines(t *testing.T) {
	fields := []string{
		"asbdFormatID = alac",
		"asbdNumChannels = 2",
		"sdBitDepth = 24 bit",
		"asbdSampleRate = 44.1 kHz",
	}

	// Dropping any one sub-field must never yield a format.
	for skip := range fields {
		var kept []string
		for i, f := range fields {
			if i != skip {
				kept = append(kept, f)
			}
		}
		line := "play> cm>> mediaFormatinfo '<private>' , lossless, " + strings.Join(kept, ", ")
		t.Run(fields[skip], func(t *testing.T) {
			assert.Nil(t, Classify(line))
		})
	}
}

func TestClassifyRejectsInvalidValues(t *testing.T) {
	tests := []string{
		"mediaFormatinfo lossless, asbdFormatID = alac, asbdNumChannels = 0, sdBitDepth = 24 bit, asbdSampleRate = 96.0 kHz",
		"mediaFormatinfo lossless, asbdFormatID = alac, asbdNumChannels = 2, sdBitDepth = 0 bit, asbdSampleRate = 96.0 kHz",
		"mediaFormatinfo lossless, asbdFormatID = alac, asbdNumChannels = 2, sdBitDepth = 24 bit, asbdSampleRate = 0 kHz",
	}
	for _, line := range tests {
		assert.Nil(t, Classify(line), line)
	}
}

func TestClassifyRequiresLossless(t *testing.T) {
	line := "play> cm>> mediaFormatinfo '<private>' , aac, asbdFormatID = aac, asbdNumChannels = 2, sdBitDepth = 16 bit, asbdSampleRate = 44.1 kHz"
	assert.Nil(t, Classify(line))
}

func TestFirstMatchGoverns(t *testing.T) {
	line := "mediaFormatinfo lossless, sdBitDepth = 24 bit, asbdFormatID = alac, asbdNumChannels = 2, asbdSampleRate = 48.0 kHz, sdBitDepth = 16 bit, asbdSampleRate = 44.1 kHz"

	sig := Classify(line)
	require.IsType(t, FormatDescribed{}, sig)
	f := sig.(FormatDescribed).Format
	assert.Equal(t, uint32(24), f.BitDepth)
	assert.Equal(t, 48000.0, f.SampleRateHz)
}

func TestSampleRateUnits(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"asbdSampleRate = 96.0 kHz", 96000, true},
		{"asbdSampleRate = 44.1 kHz", 44100, true},
		{"asbdSampleRate = 192", 192000, true},
		{"asbdSampleRate = 48000 Hz", 48000, true},
		{"asbdSampleRate = 48000", 48000, true},
		{"asbdSampleRate = kHz", 0, false},
		{"no rate here", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := SampleRate(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestIndividualExtractors(t *testing.T) {
	bits, ok := BitDepth(realFormatLine)
	assert.True(t, ok)
	assert.Equal(t, uint32(24), bits)

	ch, ok := Channels(realFormatLine)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), ch)

	tag, ok := FormatTag(realFormatLine)
	assert.True(t, ok)
	assert.Equal(t, "qlac", tag)

	_, ok = BitDepth("sdBitDepth = many")
	assert.False(t, ok)
}

func TestClassifyTrackChanged(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Signal
	}{
		{
			name: "quoted title",
			line: `play> cm>> currentItemChanged item 'Blue in Green' queue 3`,
			want: TrackChanged{TrackID: "Blue in Green"},
		},
		{
			name: "store url",
			line: `play> setQueue storeURL = https://music.apple.com/us/song/1440933849, shuffle 0`,
			want: TrackChanged{TrackID: "https://music.apple.com/us/song/1440933849"},
		},
		{
			name: "redacted",
			line: `play> cm>> currentItemChanged item '<private>'`,
			want: nil,
		},
		{
			name: "noise",
			line: `Music[812] [com.apple.Music:ampplay] play> buffering 0.5`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.line))
		})
	}
}

func TestClassifyMarkers(t *testing.T) {
	assert.Equal(t, PlaybackAdvanceMarker{Marker: MarkerSkip}, Classify("play> player skipToNextItem reason=user"))
	assert.Equal(t, PlaybackAdvanceMarker{Marker: MarkerAdvance}, Classify("play> cm>> itemDidPlayToEnd"))
}

func TestCompileCustomPatterns(t *testing.T) {
	p := DefaultPatterns()
	p.Track = append(p.Track, `nowPlaying id=(\d+)`)

	c, err := NewFromPatterns(p)
	require.NoError(t, err)
	assert.Equal(t, TrackChanged{TrackID: "42"}, c.Classify("nowPlaying id=42"))

	_, err = Compile(Patterns{Track: []string{`noGroup`}})
	assert.Error(t, err)

	_, err = Compile(Patterns{Skip: []string{`(`}})
	assert.Error(t, err)
}
