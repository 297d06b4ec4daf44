package models

import (
	"time"

	"github.com/smazurov/formatsync/internal/detection"
	"github.com/smazurov/formatsync/internal/devices"
	"github.com/smazurov/formatsync/internal/format"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/logsource"
	"github.com/smazurov/formatsync/internal/metrics"
	"github.com/smazurov/formatsync/internal/negotiation"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Detection models
type DetectionData struct {
	Phase            string              `json:"phase" example:"track-active" doc:"idle, awaiting-format or track-active"`
	CurrentTrackID   string              `json:"current_track_id" doc:"Current track, empty when none"`
	Pending          *format.Descriptor  `json:"pending,omitempty" doc:"Format held for the next track"`
	Committed        *format.Descriptor  `json:"committed,omitempty" doc:"Format last requested for the current track"`
	Requested        []format.Descriptor `json:"requested" doc:"Formats already requested for the current track"`
	TrackStartedAt   *time.Time          `json:"track_started_at,omitempty" doc:"When the current track started"`
	LastFormatSeenAt *time.Time          `json:"last_format_seen_at,omitempty" doc:"When a format was last announced"`
	ExternalSource   bool                `json:"external_source" doc:"Whether track identity comes from the now-playing observer"`
}

// NewDetectionData converts a detection state for the API.
func NewDetectionData(s detection.State) DetectionData {
	d := DetectionData{
		Phase:          string(s.Phase),
		CurrentTrackID: s.CurrentTrackID,
		Requested:      s.Requested,
		ExternalSource: s.ExternalSource,
	}
	if d.Requested == nil {
		d.Requested = []format.Descriptor{}
	}
	if s.HasPending() {
		d.Pending = &s.Pending
	}
	if s.HasCommitted() {
		d.Committed = &s.Committed
	}
	if !s.TrackStartedAt.IsZero() {
		d.TrackStartedAt = &s.TrackStartedAt
	}
	if !s.LastFormatSeenAt.IsZero() {
		d.LastFormatSeenAt = &s.LastFormatSeenAt
	}
	return d
}

type PipelineData struct {
	Lines        uint64 `json:"lines" example:"1024" doc:"Log lines seen"`
	Signals      uint64 `json:"signals" example:"12" doc:"Lines that carried a signal"`
	Superseded   uint64 `json:"superseded" doc:"Requests dropped from a full apply queue"`
	IngestQueued int    `json:"ingest_queued" doc:"Inputs waiting to be folded"`
	ApplyQueued  int    `json:"apply_queued" doc:"Requests waiting to be applied"`
}

type StatusData struct {
	Detection   DetectionData        `json:"detection"`
	Pipeline    PipelineData         `json:"pipeline"`
	LastApplied *negotiation.Applied `json:"last_applied,omitempty" doc:"Last format written to a device"`
	LogSource   *logsource.Info      `json:"log_source,omitempty" doc:"Log stream supervisor state"`
	Metrics     metrics.Summary      `json:"metrics"`
}

type StatusResponse struct {
	Body StatusData
}

// Device models
type DeviceData struct {
	devices.Record
	Selected bool `json:"selected" doc:"Whether this is the synchronized device"`
}

type DeviceListData struct {
	Devices    []DeviceData `json:"devices" doc:"Eligible output devices"`
	SelectedID string       `json:"selected_id" example:"hw:D10,0" doc:"Synchronized device, empty when none"`
	BuiltAt    time.Time    `json:"built_at" doc:"When the catalog was last rebuilt"`
	Count      int          `json:"count" example:"1" doc:"Number of eligible devices"`
}

// NewDeviceListData converts a catalog snapshot for the API.
func NewDeviceListData(snap devices.Snapshot) DeviceListData {
	list := make([]DeviceData, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		list = append(list, DeviceData{Record: d, Selected: d.ID == snap.SelectedID})
	}
	return DeviceListData{
		Devices:    list,
		SelectedID: snap.SelectedID,
		BuiltAt:    snap.BuiltAt,
		Count:      len(list),
	}
}

type DeviceListResponse struct {
	Body DeviceListData
}

type SelectDeviceRequest struct {
	Body struct {
		DeviceID string `json:"device_id" minLength:"1" example:"hw:D10,0" doc:"Device to synchronize"`
	}
}

// Playback input models
type NowPlayingRequest struct {
	Body struct {
		TrackID   *string    `json:"track_id,omitempty" doc:"Current track, omitted or null when playback stopped"`
		StartedAt *time.Time `json:"started_at,omitempty" doc:"When the track started, defaults to now"`
	}
}

type LinesRequest struct {
	Body struct {
		Lines []string `json:"lines" maxItems:"1000" doc:"Raw player log lines in arrival order"`
	}
}

type LinesData struct {
	Accepted   int `json:"accepted" example:"3" doc:"Lines received"`
	Recognized int `json:"recognized" example:"1" doc:"Lines that carried a signal"`
}

type LinesResponse struct {
	Body LinesData
}

type AcceptedResponse struct {
	Body struct {
		Status string `json:"status" example:"accepted"`
	}
}

// Logging models
type LogHistoryRequest struct {
	Since  uint64 `query:"since" doc:"Only entries with a sequence number above this"`
	Module string `query:"module" example:"negotiation" doc:"Only entries from this module"`
}

type LogHistoryData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
	LastSeq uint64             `json:"last_seq" doc:"Sequence number to pass as since on the next call"`
}

type LogHistoryResponse struct {
	Body LogHistoryData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type SetLogLevelRequest struct {
	Module string `path:"module" example:"detection" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Platform  string `json:"platform" example:"darwin/arm64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}
