package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/formatsync/internal/api/models"
	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/logging"
)

// registerLogRoutes registers the log streaming SSE endpoint and level control.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost;
		// clients dedupe on seq.
		stream := events.NewStream(100)
		events.Join[events.LogEntryEvent](stream, s.eventBus)
		defer stream.Close()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				event := events.LogEntryEvent{
					Seq:        entry.Seq,
					Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				}
				if err := send.Data(event); err != nil {
					return
				}
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

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-history",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Log History",
		Description: "Buffered log entries, optionally after a sequence number and for one module",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *models.LogHistoryRequest) (*models.LogHistoryResponse, error) {
		data := models.LogHistoryData{Entries: []logging.LogEntry{}, LastSeq: input.Since}
		buffer := logging.GetBuffer()
		if buffer == nil {
			return &models.LogHistoryResponse{Body: data}, nil
		}
		for _, entry := range buffer.Since(input.Since) {
			data.LastSeq = entry.Seq
			if input.Module != "" && entry.Module != input.Module {
				continue
			}
			data.Entries = append(data.Entries, entry)
		}
		return &models.LogHistoryResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log Levels",
		Description: "Effective log level per module",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Levels: logging.Levels()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels/{module}",
		Summary:     "Set Log Level",
		Description: "Change one module's log level at runtime",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(ctx context.Context, input *models.SetLogLevelRequest) (*models.LogLevelsResponse, error) {
		if err := logging.SetModuleLevel(input.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest("Invalid log level", err)
		}
		s.logger.Info("Log level changed", "module", input.Module, "level", input.Body.Level)
		return &models.LogLevelsResponse{Body: models.LogLevelsData{Levels: logging.Levels()}}, nil
	})
}
