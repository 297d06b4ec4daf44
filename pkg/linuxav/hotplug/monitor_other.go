//go:build !linux

package hotplug

import (
	"context"
	"errors"
)

// ErrUnsupported is returned on platforms without netlink.
var ErrUnsupported = errors.New("hotplug: netlink uevents are only available on linux")

// Monitor is a placeholder on non-Linux platforms.
type Monitor struct{}

// NewMonitor always fails outside Linux.
func NewMonitor() (*Monitor, error) { return nil, ErrUnsupported }

// AddSubsystemFilter is a no-op.
func (m *Monitor) AddSubsystemFilter(string) {}

// Close is a no-op.
func (m *Monitor) Close() error { return nil }

// Run closes events and returns ErrUnsupported.
func (m *Monitor) Run(_ context.Context, events chan<- Event) error {
	close(events)
	return ErrUnsupported
}
