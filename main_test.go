package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/formatsync/internal/events"
)

func testOptions() *Options {
	return &Options{
		Port:               ":0",
		CORSOrigin:         "*",
		NowPlayingInterval: "2s",
		DebounceWindow:     "5s",
		FallbackBitDepths:  "16:24",
		DeviceSource:       "profile",
		DeviceProfile:      "testdata-missing.toml",
		ApplyTimeout:       "10s",
		ApplyQueueSize:     4,
		LoggingLevel:       "info",
		LoggingFormat:      "text",
	}
}

func TestBuildWiresComponents(t *testing.T) {
	opts := testOptions()
	opts.NowPlayingCommand = "printf 'playing\\tstore://1\\n'"

	a, err := build(context.Background(), opts, events.New())
	require.NoError(t, err)

	assert.NotNil(t, a.store)
	assert.NotNil(t, a.engine)
	assert.NotNil(t, a.pipeline)
	assert.NotNil(t, a.source)
	assert.NotNil(t, a.poller)
	assert.NotNil(t, a.server)
	assert.Nil(t, a.manager)
}

func TestBuildWithoutAPIOrPoller(t *testing.T) {
	opts := testOptions()
	opts.Port = ""

	a, err := build(context.Background(), opts, events.New())
	require.NoError(t, err)
	assert.Nil(t, a.server)
	assert.Nil(t, a.poller)
}

func TestBuildRejectsInvalidOptions(t *testing.T) {
	tests := map[string]func(*Options){
		"debounce window": func(o *Options) { o.DebounceWindow = "soon" },
		"apply timeout":   func(o *Options) { o.ApplyTimeout = "-" },
		"fallbacks":       func(o *Options) { o.FallbackBitDepths = "16-24" },
		"device source":   func(o *Options) { o.DeviceSource = "pulse" },
		"poll interval": func(o *Options) {
			o.NowPlayingCommand = "true"
			o.NowPlayingInterval = "often"
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			opts := testOptions()
			mutate(opts)
			_, err := build(context.Background(), opts, events.New())
			assert.Error(t, err)
		})
	}
}

func TestLoggingConfigOverrides(t *testing.T) {
	opts := testOptions()
	opts.LoggingLevel = "warn"
	opts.LoggingNegotiation = "debug"

	cfg := opts.loggingConfig()
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "debug", cfg.Modules["negotiation"])
	assert.NotContains(t, cfg.Modules, "pipeline")
}

func TestLoadClassifierExtraPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formatsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[classifier]
track_patterns = ['nowPlaying id=(\S+)']
`), 0o644))

	cls, err := loadClassifier(path)
	require.NoError(t, err)
	sig := cls.Classify("ampplay: nowPlaying id=store://42")
	require.NotNil(t, sig)
	assert.Equal(t, "track-changed", string(sig.Kind()))

	require.NoError(t, os.WriteFile(path, []byte("[classifier]\ntrack_patterns = ['(']\n"), 0o644))
	_, err = loadClassifier(path)
	assert.Error(t, err)
}
