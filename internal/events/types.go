package events

import "github.com/smazurov/formatsync/internal/format"

// Event type constants for kelindar/event.
const (
	TypeTrackChanged uint32 = iota + 1
	TypeFormatRequested
	TypeFormatChanged
	TypeFormatRejected
	TypeDeviceTopologyChanged
	TypeLogSourceStateChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// TrackChangedEvent is published when the detection state switches tracks.
type TrackChangedEvent struct {
	TrackID   string `json:"track_id" example:"https://music.apple.com/us/song/1440933849" doc:"Opaque track identifier, empty when playback stopped"`
	Source    string `json:"source" example:"external" doc:"Identity source: log or external"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TrackChangedEvent.
func (e TrackChangedEvent) Type() uint32 { return TypeTrackChanged }

// FormatRequestedEvent is published for every request emitted by detection.
type FormatRequestedEvent struct {
	RequestID string            `json:"request_id" example:"0b7c4c3e-2f7b-4f9e-9d53-0f6f1a8d7f10" doc:"Request correlation id"`
	TrackID   string            `json:"track_id" doc:"Track the format was attributed to"`
	Format    format.Descriptor `json:"format" doc:"Requested format"`
	Reason    string            `json:"reason" example:"pending-on-track-change" doc:"Why the request was emitted"`
	Timestamp string            `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FormatRequestedEvent.
func (e FormatRequestedEvent) Type() uint32 { return TypeFormatRequested }

// FormatChangedEvent is published after the output device accepted a new format.
type FormatChangedEvent struct {
	RequestID string            `json:"request_id" doc:"Request that caused the change"`
	DeviceID  string            `json:"device_id" example:"hw:D10,0" doc:"Reconfigured device"`
	Format    format.Descriptor `json:"format" doc:"Format now active on the device"`
	Fallback  bool              `json:"fallback" doc:"Whether a substitute bit depth was used"`
	Timestamp string            `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FormatChangedEvent.
func (e FormatChangedEvent) Type() uint32 { return TypeFormatChanged }

// Rejection reasons carried by FormatRejectedEvent.
const (
	RejectNoDevice    = "no-device"
	RejectNoMatch     = "no-match"
	RejectWriteFailed = "write-failed"
)

// FormatRejectedEvent is published when a request could not be applied.
type FormatRejectedEvent struct {
	RequestID string            `json:"request_id" doc:"Rejected request"`
	DeviceID  string            `json:"device_id,omitempty" doc:"Device the request was negotiated against"`
	Format    format.Descriptor `json:"format" doc:"Requested format"`
	Reason    string            `json:"reason" example:"no-match" doc:"no-device, no-match or write-failed"`
	Error     string            `json:"error,omitempty" doc:"Underlying error for write failures"`
	Timestamp string            `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FormatRejectedEvent.
func (e FormatRejectedEvent) Type() uint32 { return TypeFormatRejected }

// DeviceInfo describes one output device in a topology event.
type DeviceInfo struct {
	ID       string              `json:"id" example:"hw:D10,0" doc:"Device identifier"`
	Name     string              `json:"name" example:"Topping D10" doc:"Human readable name"`
	Current  format.Descriptor   `json:"current" doc:"Currently active format"`
	Formats  []format.Descriptor `json:"formats" doc:"Supported formats"`
	Selected bool                `json:"selected" doc:"Whether this is the synchronized device"`
}

// DeviceTopologyChangedEvent is published whenever the device catalog is rebuilt
// or the selected device changes.
type DeviceTopologyChangedEvent struct {
	Devices    []DeviceInfo `json:"devices" doc:"Eligible devices"`
	SelectedID string       `json:"selected_id" doc:"Selected device id, empty when none"`
	Cause      string       `json:"cause" example:"hotplug" doc:"What triggered the rebuild"`
	Timestamp  string       `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceTopologyChangedEvent.
func (e DeviceTopologyChangedEvent) Type() uint32 { return TypeDeviceTopologyChanged }

// LogSourceStateChangedEvent reports log stream process starts and exits.
type LogSourceStateChangedEvent struct {
	State     string `json:"state" example:"running" doc:"running, restarting or stopped"`
	Reason    string `json:"reason,omitempty" example:"wake" doc:"Why the state changed"`
	Restarts  int    `json:"restarts" doc:"Restarts since startup"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for LogSourceStateChangedEvent.
func (e LogSourceStateChangedEvent) Type() uint32 { return TypeLogSourceStateChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"negotiation" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
