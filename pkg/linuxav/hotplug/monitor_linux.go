//go:build linux

package hotplug

import (
	"context"
	"errors"
	"sync"
	"syscall"
)

const (
	netlinkKobjectUEvent = 15
	kernelGroup          = 1
	recvBufferSize       = 8192
)

// Monitor receives uevents from the kernel broadcast group.
type Monitor struct {
	fd int

	mu         sync.RWMutex
	subsystems map[string]struct{}
}

// NewMonitor opens and binds the netlink socket.
func NewMonitor() (*Monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	if err := syscall.Bind(fd, &syscall.SockaddrNetlink{Family: syscall.AF_NETLINK, Groups: kernelGroup}); err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}
	// A receive timeout lets Run notice cancellation.
	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		_ = syscall.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, subsystems: make(map[string]struct{})}, nil
}

// AddSubsystemFilter restricts delivery to the given subsystems. With no
// filter every event is delivered. Safe for concurrent use.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.mu.Lock()
	m.subsystems[subsystem] = struct{}{}
	m.mu.Unlock()
}

func (m *Monitor) accepts(ev *Event) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.subsystems) == 0 {
		return true
	}
	_, ok := m.subsystems[ev.Subsystem]
	return ok
}

// Close releases the socket.
func (m *Monitor) Close() error {
	return syscall.Close(m.fd)
}

// Run delivers matching events until ctx is done or the socket fails.
// events is closed on return.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	buf := make([]byte, recvBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := m.receive(buf)
		if err != nil {
			return err
		}
		if ev == nil || !m.accepts(ev) {
			continue
		}

		select {
		case events <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// receive returns nil, nil on timeouts and unparsable datagrams.
func (m *Monitor) receive(buf []byte) (*Event, error) {
	n, _, err := syscall.Recvfrom(m.fd, buf, 0)
	switch {
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		return nil, nil
	case err != nil:
		return nil, err
	case n == 0:
		return nil, nil
	}
	return ParseUEvent(buf[:n]), nil
}
