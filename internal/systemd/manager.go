// Package systemd integrates with the service manager: readiness and
// watchdog notifications, and restarting units that hold the audio device.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

const jobDone = "done"

// Manager restarts systemd units over D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the user manager, or to the system manager when
// system is set.
func NewManager(ctx context.Context, system bool) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if system {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	} else {
		conn, err = dbus.NewUserConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

// ActiveState returns the unit's ActiveState property.
func (m *Manager) ActiveState(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", err
	}
	state, _ := prop.Value.Value().(string)
	return state, nil
}

// RestartUnit restarts unit and waits for the job to finish.
func (m *Manager) RestartUnit(ctx context.Context, unit string) error {
	result := make(chan string, 1)
	if _, err := m.conn.RestartUnitContext(ctx, unit, "replace", result); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		if res != jobDone {
			return fmt.Errorf("restart %s: job %s", unit, res)
		}
		return nil
	}
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
