package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages. Outside systemd every call is a no-op.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
}

// NewNotifier creates a notifier using NOTIFY_SOCKET from the environment.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	switch {
	case err != nil:
		n.logger.Warn("Failed to notify systemd", "state", state, "error", err)
	case sent:
		n.logger.Debug("Notified systemd", "state", state)
	}
}

// Ready reports startup completion.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl.
func (n *Notifier) Status(status string) { n.send("STATUS=" + status) }

// RunWatchdog pings the watchdog at half the configured interval until ctx
// is done. It returns immediately when the watchdog is disabled.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
		return
	}
	if interval == 0 {
		return
	}
	n.runWatchdog(ctx, interval/2)
}

func (n *Notifier) runWatchdog(ctx context.Context, every time.Duration) {
	n.logger.Info("Watchdog enabled", "interval", every)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
