package devices

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/format"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/metrics"
)

// Refresh causes, reported in topology events.
const (
	CauseStartup       = "startup"
	CauseHotplug       = "hotplug"
	CauseProfileReload = "profile-reload"
	CauseFormatChanged = "format-changed"
	CauseSelection     = "selection"
	CauseManual        = "manual"
)

// StoreOptions configures a Store.
type StoreOptions struct {
	Bus         *events.Bus
	PreferredID string
	MinBitDepth uint32
	Logger      *slog.Logger
}

// Store is the device capability catalog. The snapshot is replaced
// wholesale on every refresh; readers never see partial updates.
type Store struct {
	detector Detector
	bus      *events.Bus
	logger   *slog.Logger
	minBits  uint32

	mu        sync.RWMutex
	snap      Snapshot
	preferred string
	applied   map[string]format.Descriptor

	refreshMu sync.Mutex
	unsub     func()
}

// NewStore creates an empty catalog backed by detector.
func NewStore(detector Detector, opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("devices")
	}
	minBits := opts.MinBitDepth
	if minBits == 0 {
		minBits = MinBitDepth
	}
	return &Store{
		detector:  detector,
		bus:       opts.Bus,
		logger:    logger,
		minBits:   minBits,
		preferred: opts.PreferredID,
		applied:   make(map[string]format.Descriptor),
	}
}

// Start performs the initial refresh and tracks applied formats.
func (s *Store) Start(ctx context.Context) error {
	if s.bus != nil {
		s.unsub = s.bus.Subscribe(func(e events.FormatChangedEvent) {
			s.recordApplied(e.DeviceID, e.Format)
			if err := s.Refresh(ctx, CauseFormatChanged); err != nil {
				s.logger.Warn("Failed to refresh devices after format change", "error", err)
			}
		})
	}
	return s.Refresh(ctx, CauseStartup)
}

// Stop releases the bus subscription.
func (s *Store) Stop() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *Store) recordApplied(deviceID string, f format.Descriptor) {
	s.mu.Lock()
	s.applied[deviceID] = f
	s.mu.Unlock()
}

// Refresh rebuilds the snapshot from the detector.
func (s *Store) Refresh(ctx context.Context, cause string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	listed, err := s.detector.ListDevices(ctx)
	if err != nil {
		return NewError(ErrCodeDetectFailed, "list devices from "+s.detector.Name(), err)
	}

	hardware := readsCurrent(s.detector)

	s.mu.Lock()
	records := make([]Record, 0, len(listed))
	for _, rec := range listed {
		if rec.MaxBitDepth() < s.minBits {
			s.logger.Debug("Excluding device without high resolution formats",
				"device_id", rec.ID, "max_bits", rec.MaxBitDepth())
			continue
		}
		if f, ok := s.applied[rec.ID]; ok && (!hardware || !rec.Current.Valid()) {
			rec.Current = f
		}
		rec.Formats = slices.Clone(rec.Formats)
		records = append(records, rec)
	}

	prev := s.snap.SelectedID
	snap := Snapshot{
		Devices:    records,
		SelectedID: s.chooseSelected(records, prev),
		BuiltAt:    time.Now(),
	}
	s.snap = snap
	s.mu.Unlock()

	if snap.SelectedID != prev {
		s.logger.Info("Selected output device", "device_id", snap.SelectedID, "previous", prev)
	}
	s.logger.Debug("Device catalog rebuilt", "cause", cause, "devices", len(records))
	metrics.SetDevices(len(records))
	s.publish(snap, cause)
	return nil
}

// chooseSelected must be called with mu held.
func (s *Store) chooseSelected(records []Record, prev string) string {
	has := func(id string) bool {
		return id != "" && slices.ContainsFunc(records, func(r Record) bool { return r.ID == id })
	}
	switch {
	case has(s.preferred):
		return s.preferred
	case has(prev):
		return prev
	case len(records) > 0:
		if s.preferred != "" {
			s.logger.Warn("Preferred device not present, falling back", "preferred", s.preferred, "fallback", records[0].ID)
		}
		return records[0].ID
	default:
		return ""
	}
}

// Snapshot returns the current catalog view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Selected returns the selected device.
func (s *Store) Selected() (Record, bool) {
	return s.Snapshot().Selected()
}

// Select pins the synchronized device.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	if _, ok := s.snap.Find(id); !ok {
		s.mu.Unlock()
		return NewError(ErrCodeDeviceNotFound, "no eligible device "+id, nil)
	}
	s.preferred = id
	s.snap.SelectedID = id
	snap := s.snap
	s.mu.Unlock()

	s.logger.Info("Output device selected", "device_id", id)
	s.publish(snap, CauseSelection)
	return nil
}

func (s *Store) publish(snap Snapshot, cause string) {
	if s.bus == nil {
		return
	}
	infos := make([]events.DeviceInfo, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		infos = append(infos, events.DeviceInfo{
			ID:       d.ID,
			Name:     d.Name,
			Current:  d.Current,
			Formats:  d.Formats,
			Selected: d.ID == snap.SelectedID,
		})
	}
	s.bus.Publish(events.DeviceTopologyChangedEvent{
		Devices:    infos,
		SelectedID: snap.SelectedID,
		Cause:      cause,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}
