package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/formatsync/cmd"
	"github.com/smazurov/formatsync/internal/api"
	"github.com/smazurov/formatsync/internal/classifier"
	"github.com/smazurov/formatsync/internal/config"
	"github.com/smazurov/formatsync/internal/detection"
	"github.com/smazurov/formatsync/internal/devices"
	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/logsource"
	"github.com/smazurov/formatsync/internal/metrics"
	"github.com/smazurov/formatsync/internal/negotiation"
	"github.com/smazurov/formatsync/internal/nowplaying"
	"github.com/smazurov/formatsync/internal/pipeline"
	"github.com/smazurov/formatsync/internal/systemd"
	"github.com/smazurov/formatsync/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"formatsync.toml"`

	// Server settings
	Port         string `help:"Port to listen on, empty disables the API" short:"p" default:":8091" toml:"server.port" env:"SERVER_PORT"`
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`
	CORSOrigin   string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Input sources
	LogCommand         string `help:"Player log stream command; - reads stdin. Defaults to the Music log stream on macOS and stdin elsewhere" default:"" toml:"source.log_command" env:"SOURCE_LOG_COMMAND"`
	NowPlayingCommand  string `help:"Command printing status<TAB>track id, empty disables polling" default:"" toml:"source.now_playing_command" env:"SOURCE_NOW_PLAYING_COMMAND"`
	NowPlayingInterval string `help:"Now-playing poll interval" default:"2s" toml:"source.now_playing_interval" env:"SOURCE_NOW_PLAYING_INTERVAL"`

	// Detection and negotiation
	DebounceWindow    string `help:"Window after a track change in which a format belongs to that track" default:"5s" toml:"detection.debounce_window" env:"DETECTION_DEBOUNCE_WINDOW"`
	FallbackBitDepths string `help:"Bit depth substitutions as from:to pairs" default:"16:24" toml:"negotiation.fallback_bit_depths" env:"NEGOTIATION_FALLBACK_BIT_DEPTHS"`

	// Devices
	DeviceSource   string `help:"Device source: alsa or profile" default:"alsa" toml:"devices.source" env:"DEVICES_SOURCE"`
	DeviceProfile  string `help:"Device profile for the profile source" default:"devices.toml" toml:"devices.profile" env:"DEVICES_PROFILE"`
	ALSARoot       string `help:"ALSA procfs root" default:"" toml:"devices.alsa_root" env:"DEVICES_ALSA_ROOT"`
	SelectedDevice string `help:"Device to synchronize, empty selects the first eligible" default:"" toml:"devices.selected" env:"DEVICES_SELECTED"`

	// Apply
	ApplyCommand     string `help:"Command template that sets the device format, empty is a dry run" default:"" toml:"apply.command" env:"APPLY_COMMAND"`
	ApplyTimeout     string `help:"Apply command timeout" default:"10s" toml:"apply.timeout" env:"APPLY_TIMEOUT"`
	ApplyRestartUnit string `help:"systemd unit to restart after a format change" default:"" toml:"apply.restart_unit" env:"APPLY_RESTART_UNIT"`
	ApplySystemUnit  bool   `help:"Restart unit is a system unit rather than a user unit" default:"false" toml:"apply.system_unit" env:"APPLY_SYSTEM_UNIT"`
	ApplyQueueSize   int    `help:"Pending format requests before the oldest is dropped" default:"4" toml:"apply.queue_size" env:"APPLY_QUEUE_SIZE"`

	MetricsEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline    string `help:"Pipeline logging level" default:"" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingDetection   string `help:"Detection logging level" default:"" toml:"logging.detection" env:"LOGGING_DETECTION"`
	LoggingNegotiation string `help:"Negotiation logging level" default:"" toml:"logging.negotiation" env:"LOGGING_NEGOTIATION"`
	LoggingDevices     string `help:"Devices logging level" default:"" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingLogsource   string `help:"Log source logging level" default:"" toml:"logging.logsource" env:"LOGGING_LOGSOURCE"`
	LoggingNowplaying  string `help:"Now-playing logging level" default:"" toml:"logging.nowplaying" env:"LOGGING_NOWPLAYING"`
	LoggingAPI         string `help:"API logging level" default:"" toml:"logging.api" env:"LOGGING_API"`
}

// loggingConfig layers flag and env levels over the [logging] table of the
// config file, which may also name modules without a dedicated flag.
func (o *Options) loggingConfig() logging.Config {
	cfg := config.LoadLoggingConfig(o.Config)
	cfg.Level = o.LoggingLevel
	cfg.Format = o.LoggingFormat
	overrides := map[string]string{
		"pipeline":    o.LoggingPipeline,
		"detection":   o.LoggingDetection,
		"negotiation": o.LoggingNegotiation,
		"devices":     o.LoggingDevices,
		"logsource":   o.LoggingLogsource,
		"nowplaying":  o.LoggingNowplaying,
		"api":         o.LoggingAPI,
	}
	for module, level := range overrides {
		if level != "" {
			cfg.Modules[module] = level
		}
	}
	return cfg
}

// classifierSection is the [classifier] table. Its patterns extend the
// built-in ones.
type classifierSection struct {
	TrackPatterns   []string `toml:"track_patterns"`
	SkipPatterns    []string `toml:"skip_patterns"`
	AdvancePatterns []string `toml:"advance_patterns"`
}

func loadClassifier(configPath string) (*classifier.Classifier, error) {
	var section classifierSection
	if err := config.LoadSection(configPath, "classifier", &section); err != nil {
		return nil, err
	}
	if len(section.TrackPatterns)+len(section.SkipPatterns)+len(section.AdvancePatterns) == 0 {
		return classifier.Default(), nil
	}
	p := classifier.DefaultPatterns()
	p.Track = append(p.Track, section.TrackPatterns...)
	p.Skip = append(p.Skip, section.SkipPatterns...)
	p.Advance = append(p.Advance, section.AdvancePatterns...)
	return classifier.NewFromPatterns(p)
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}

// app holds the wired components.
type app struct {
	bus      *events.Bus
	store    *devices.Store
	engine   *negotiation.Engine
	pipeline *pipeline.Service
	source   *logsource.Supervisor
	poller   *nowplaying.Poller
	manager  *systemd.Manager
	server   *api.Server
}

func build(ctx context.Context, opts *Options, bus *events.Bus) (*app, error) {
	window, err := parseDuration("debounce window", opts.DebounceWindow)
	if err != nil {
		return nil, err
	}
	applyTimeout, err := parseDuration("apply timeout", opts.ApplyTimeout)
	if err != nil {
		return nil, err
	}
	fallbacks, err := negotiation.ParseFallbacks(opts.FallbackBitDepths)
	if err != nil {
		return nil, err
	}
	cls, err := loadClassifier(opts.Config)
	if err != nil {
		return nil, err
	}

	det, err := cmd.NewDetector(opts.DeviceSource, opts.DeviceProfile, opts.ALSARoot)
	if err != nil {
		return nil, err
	}
	a := &app{bus: bus}
	a.store = devices.NewStore(det, devices.StoreOptions{Bus: bus, PreferredID: opts.SelectedDevice})

	port, err := devices.NewPort(opts.ApplyCommand, applyTimeout)
	if err != nil {
		return nil, err
	}
	if opts.ApplyRestartUnit != "" {
		if a.manager, err = systemd.NewManager(ctx, opts.ApplySystemUnit); err != nil {
			return nil, err
		}
		port = devices.NewRestartingPort(port, a.manager, opts.ApplyRestartUnit)
	}

	a.engine = negotiation.NewEngine(a.store, port, bus, negotiation.Policy{BitDepthFallbacks: fallbacks})
	a.pipeline = pipeline.New(pipeline.Options{
		Classifier: cls,
		Machine:    detection.NewMachine(detection.Config{DebounceWindow: window}),
		Engine:     a.engine,
		Bus:        bus,
		ApplyQueue: opts.ApplyQueueSize,
	})

	a.source = logsource.New(logsource.Options{
		Command: opts.LogCommand,
		OnLine:  func(line string) { a.pipeline.OnLine(line) },
		Bus:     bus,
	})

	if opts.NowPlayingCommand != "" {
		interval, err := parseDuration("now-playing interval", opts.NowPlayingInterval)
		if err != nil {
			return nil, err
		}
		a.poller = nowplaying.New(nowplaying.Options{
			Command:  opts.NowPlayingCommand,
			Interval: interval,
			Observer: a.pipeline,
		})
	}

	if opts.Port != "" {
		apiOpts := api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			CORSOrigin:   opts.CORSOrigin,
			Bus:          bus,
			Pipeline:     a.pipeline,
			Catalog:      a.store,
			Applied:      a.engine,
			LogSource:    a.source,
		}
		if opts.MetricsEnabled {
			apiOpts.MetricsHandler = metrics.Handler()
		}
		a.server = api.NewServer(apiOpts)
	}
	return a, nil
}

// run starts every component and blocks until ctx is done.
func (a *app) run(ctx context.Context, opts *Options, logger *slog.Logger, notifier *systemd.Notifier) {
	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				logger.Error("Component failed", "component", name, "error", err)
			}
		}()
	}

	if err := a.store.Start(ctx); err != nil {
		logger.Warn("Initial device detection failed", "error", err)
	}
	defer a.store.Stop()

	switch opts.DeviceSource {
	case cmd.SourceProfile:
		w, err := devices.WatchProfile(ctx, opts.DeviceProfile, a.store)
		if err != nil {
			logger.Warn("Device profile will not be reloaded", "error", err)
		} else {
			defer w.Stop()
		}
	default:
		goRun("hotplug", func() error { return devices.WatchHotplug(ctx, a.store, devices.DefaultHotplugCoalesce) })
	}

	a.pipeline.Start(ctx)
	defer a.pipeline.Stop()

	goRun("logsource", func() error { return a.source.Run(ctx) })
	if a.poller != nil {
		goRun("nowplaying", func() error { return a.poller.Run(ctx) })
	}
	if a.server != nil {
		goRun("api", func() error { return a.server.Start(opts.Port) })
	}
	goRun("watchdog", func() error { notifier.RunWatchdog(ctx); return nil })

	notifier.Ready()
	if dev, ok := a.store.Selected(); ok {
		notifier.Status("Following " + dev.ID)
	}
	logger.Info("formatsync started", "version", version.String(), "device_source", opts.DeviceSource)

	<-ctx.Done()

	notifier.Stopping()
	logger.Info("Shutting down")
	if a.server != nil {
		if err := a.server.Stop(); err != nil {
			logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	wg.Wait()
	if a.manager != nil {
		a.manager.Close()
	}
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if err := config.LoadConfig(opts, cli.Root()); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to load config:", err)
			os.Exit(1)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		bus := events.New()
		logging.SetLogCallback(func(e logging.LogEntry) {
			bus.Publish(events.LogEntryEvent{
				Seq:        e.Seq,
				Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			})
		})

		ctx, cancel := context.WithCancel(context.Background())
		a, err := build(ctx, opts, bus)
		if err != nil {
			logger.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}

		done := make(chan struct{})
		hooks.OnStart(func() {
			defer close(done)
			a.run(ctx, opts, logger, systemd.NewNotifier(logger))
		})

		hooks.OnStop(func() {
			cancel()
			<-done
		})
	})

	cli.Root().Use = "formatsync"
	cli.Root().Short = "Keep the output device sample format in sync with the playing track"
	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateClassifyCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateNegotiateCmd())

	cli.Run()
}
