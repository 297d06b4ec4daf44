package devices

import (
	"context"
	"errors"
	"time"

	"github.com/smazurov/formatsync/internal/config"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/pkg/linuxav/hotplug"
)

// DefaultHotplugCoalesce groups the burst of uevents a USB DAC produces
// when it is plugged in into a single refresh.
const DefaultHotplugCoalesce = 500 * time.Millisecond

// Refresher rebuilds a catalog.
type Refresher interface {
	Refresh(ctx context.Context, cause string) error
}

// WatchHotplug refreshes r whenever a sound card appears, disappears or
// changes. It blocks until ctx is done, or fails fast where netlink is
// unavailable.
func WatchHotplug(ctx context.Context, r Refresher, coalesce time.Duration) error {
	logger := logging.GetLogger("devices")

	mon, err := hotplug.NewMonitor()
	if err != nil {
		return NewError(ErrCodeDetectFailed, "open hotplug monitor", err)
	}
	defer mon.Close()
	mon.AddSubsystemFilter(hotplug.SubsystemSound)

	events := make(chan hotplug.Event, 16)
	runErr := make(chan error, 1)
	go func() {
		runErr <- mon.Run(ctx, events)
	}()

	logger.Info("Hotplug monitoring started", "subsystem", hotplug.SubsystemSound)
	coalesceEvents(ctx, events, coalesce, func(n int) {
		logger.Debug("Sound topology changed", "events", n)
		if err := r.Refresh(ctx, CauseHotplug); err != nil {
			logger.Warn("Failed to refresh devices after hotplug", "error", err)
		}
	})

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// coalesceEvents calls fn once per quiet period following topology changes.
// It returns when events is closed or ctx is done.
func coalesceEvents(ctx context.Context, events <-chan hotplug.Event, window time.Duration, fn func(n int)) {
	if window <= 0 {
		window = DefaultHotplugCoalesce
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := 0
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if pending > 0 {
					fn(pending)
				}
				return
			}
			if !ev.TopologyChange() {
				continue
			}
			pending++
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(window)
			timerC = timer.C
		case <-timerC:
			fn(pending)
			pending = 0
			timerC = nil
		}
	}
}

// WatchProfile refreshes r whenever the profile file changes. Invalid edits
// are logged and the previous catalog stays in place.
func WatchProfile(ctx context.Context, path string, r Refresher) (*config.Watcher[Profile], error) {
	logger := logging.GetLogger("devices")

	w := config.NewConfigWatcher(path, LoadProfile, logger,
		config.WithDebounce[Profile](300*time.Millisecond),
		config.WithErrorHandler[Profile](func(err error) {
			logger.Warn("Ignoring invalid device profile", "path", path, "error", err)
		}),
	)
	w.OnReload(func(p Profile) {
		logger.Info("Device profile reloaded", "path", path, "devices", len(p.Devices))
		if err := r.Refresh(ctx, CauseProfileReload); err != nil {
			logger.Warn("Failed to refresh devices after profile reload", "error", err)
		}
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}
