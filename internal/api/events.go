package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/formatsync/internal/devices"
	"github.com/smazurov/formatsync/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Track changes, format requests, applied and rejected formats, device topology and log source state",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"track-changed":      events.TrackChangedEvent{},
		"format-requested":   events.FormatRequestedEvent{},
		"format-changed":     events.FormatChangedEvent{},
		"format-rejected":    events.FormatRejectedEvent{},
		"device-topology":    events.DeviceTopologyChangedEvent{},
		"log-source-changed": events.LogSourceStateChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		stream := events.NewStream(32)
		events.Join[events.TrackChangedEvent](stream, s.eventBus)
		events.Join[events.FormatRequestedEvent](stream, s.eventBus)
		events.Join[events.FormatChangedEvent](stream, s.eventBus)
		events.Join[events.FormatRejectedEvent](stream, s.eventBus)
		events.Join[events.DeviceTopologyChangedEvent](stream, s.eventBus)
		events.Join[events.LogSourceStateChangedEvent](stream, s.eventBus)
		defer func() {
			stream.Close()
			if n := stream.Dropped(); n > 0 {
				s.logger.Warn("Event stream client fell behind", "dropped", n)
			}
		}()

		// Current topology first so clients need no separate fetch.
		if s.opts.Catalog != nil {
			if err := send.Data(topologyEvent(s.opts.Catalog.Snapshot())); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-stream.C:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

func topologyEvent(snap devices.Snapshot) events.DeviceTopologyChangedEvent {
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
	return events.DeviceTopologyChangedEvent{
		Devices:    infos,
		SelectedID: snap.SelectedID,
		Cause:      "connected",
		Timestamp:  time.Now().Format(time.RFC3339),
	}
}
