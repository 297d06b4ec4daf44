package detection

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMachineScenarioD(t *testing.T) {
	clock := &fakeClock{now: t0}
	m := NewMachine(Config{}, WithClock(clock.Now))

	assert.Empty(t, m.Apply(TrackChanged{TrackID: "trackA"}))
	clock.Advance(time.Second)

	reqs := m.Apply(FormatDescribed{hiRes})
	require.Len(t, reqs, 1)
	assert.NotEmpty(t, reqs[0].ID)

	clock.Advance(10 * time.Second)
	assert.Empty(t, m.Apply(FormatDescribed{hiRes}))

	snap := m.Snapshot()
	assert.Equal(t, "trackA", snap.CurrentTrackID)
	assert.Equal(t, hiRes, snap.Pending)
	assert.Equal(t, t0.Add(11*time.Second), snap.LastFormatSeenAt)
}

func TestMachineAssignsIDs(t *testing.T) {
	n := 0
	m := NewMachine(Config{}, WithIDGenerator(func() string {
		n++
		return "req-" + strconv.Itoa(n)
	}))

	m.ApplyAt(FormatDescribed{hiRes}, t0)
	reqs := m.ApplyAt(TrackChanged{TrackID: "a"}, t0.Add(time.Second))
	require.Len(t, reqs, 1)
	assert.Equal(t, "req-1", reqs[0].ID)
}

func TestMachineSnapshotIsDetached(t *testing.T) {
	m := NewMachine(Config{})
	m.ApplyAt(TrackChanged{TrackID: "a"}, t0)
	m.ApplyAt(FormatDescribed{hiRes}, t0)

	snap := m.Snapshot()
	snap.Requested[0] = cdRes

	assert.Equal(t, hiRes, m.Snapshot().Requested[0])
}

func TestMachineConcurrentApply(t *testing.T) {
	m := NewMachine(Config{DebounceWindow: time.Hour})
	m.ApplyAt(TrackChanged{TrackID: "a"}, t0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reqs := m.ApplyAt(FormatDescribed{hiRes}, t0.Add(time.Second))
			mu.Lock()
			total += len(reqs)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
}
