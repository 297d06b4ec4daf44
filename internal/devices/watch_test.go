package devices

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/formatsync/pkg/linuxav/hotplug"
)

type recordingRefresher struct {
	mu     sync.Mutex
	causes []string
	done   chan struct{}
}

func newRecordingRefresher() *recordingRefresher {
	return &recordingRefresher{done: make(chan struct{}, 8)}
}

func (r *recordingRefresher) Refresh(_ context.Context, cause string) error {
	r.mu.Lock()
	r.causes = append(r.causes, cause)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func cardEvent(action string) hotplug.Event {
	return hotplug.Event{Action: action, Subsystem: hotplug.SubsystemSound, DevName: "snd/controlC1"}
}

func TestCoalesceEvents(t *testing.T) {
	events := make(chan hotplug.Event, 8)
	var calls []int
	done := make(chan struct{})

	go func() {
		coalesceEvents(context.Background(), events, 30*time.Millisecond, func(n int) { calls = append(calls, n) })
		close(done)
	}()

	// One plug-in burst, with PCM nodes that are not topology changes
	events <- cardEvent(hotplug.ActionAdd)
	events <- hotplug.Event{Action: hotplug.ActionAdd, Subsystem: hotplug.SubsystemSound, DevName: "snd/pcmC1D0p"}
	events <- cardEvent(hotplug.ActionChange)
	time.Sleep(100 * time.Millisecond)

	events <- cardEvent(hotplug.ActionRemove)
	close(events)
	<-done

	assert.Equal(t, []int{2, 1}, calls)
}

func TestCoalesceEventsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coalesceEvents(ctx, make(chan hotplug.Event), 0, func(int) {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coalesceEvents did not return after cancel")
	}
}

func TestWatchProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))

	r := newRecordingRefresher()
	w, err := WatchProfile(context.Background(), path, r)
	require.NoError(t, err)
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	// Invalid edits do not refresh
	require.NoError(t, os.WriteFile(path, []byte("[[devices]\n"), 0o644))
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o644))
	select {
	case <-r.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for profile refresh")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{CauseProfileReload}, r.causes)
}
