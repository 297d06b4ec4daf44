package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/formatsync/internal/api/models"
	"github.com/smazurov/formatsync/internal/metrics"
)

func (s *Server) registerPlaybackRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Detection state, pipeline counters and the last applied format",
		Tags:        []string{"playback"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		body := models.StatusData{Metrics: metrics.Snapshot()}
		if s.opts.Pipeline != nil {
			st := s.opts.Pipeline.Status()
			body.Detection = models.NewDetectionData(st.Detection)
			body.Pipeline = models.PipelineData{
				Lines:        st.Lines,
				Signals:      st.Signals,
				Superseded:   st.Superseded,
				IngestQueued: st.IngestQueued,
				ApplyQueued:  st.ApplyQueued,
			}
		}
		if s.opts.Applied != nil {
			if applied, ok := s.opts.Applied.LastApplied(); ok {
				body.LastApplied = &applied
			}
		}
		if s.opts.LogSource != nil {
			info := s.opts.LogSource.Info()
			body.LogSource = &info
		}
		return &models.StatusResponse{Body: body}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "set-now-playing",
		Method:        http.MethodPost,
		Path:          "/api/now-playing",
		Summary:       "Report Now Playing",
		Description:   "Report the externally observed track. Omit track_id when playback stopped.",
		Tags:          []string{"playback"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{400, 401, 503},
	}, func(ctx context.Context, input *models.NowPlayingRequest) (*models.AcceptedResponse, error) {
		if s.opts.Pipeline == nil {
			return nil, huma.Error503ServiceUnavailable("Pipeline not running")
		}
		trackID := input.Body.TrackID
		if trackID != nil && *trackID == "" {
			trackID = nil
		}
		var started time.Time
		if trackID != nil {
			started = time.Now()
			if input.Body.StartedAt != nil {
				started = *input.Body.StartedAt
			}
		}
		s.opts.Pipeline.OnNowPlayingChanged(trackID, started)

		resp := &models.AcceptedResponse{}
		resp.Body.Status = "accepted"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "post-lines",
		Method:      http.MethodPost,
		Path:        "/api/lines",
		Summary:     "Ingest Log Lines",
		Description: "Feed raw player log lines into the classifier, for bridges running on another host",
		Tags:        []string{"playback"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 503},
	}, func(ctx context.Context, input *models.LinesRequest) (*models.LinesResponse, error) {
		if s.opts.Pipeline == nil {
			return nil, huma.Error503ServiceUnavailable("Pipeline not running")
		}
		data := models.LinesData{Accepted: len(input.Body.Lines)}
		for _, line := range input.Body.Lines {
			if s.opts.Pipeline.OnLine(line) {
				data.Recognized++
			}
		}
		return &models.LinesResponse{Body: data}, nil
	})
}
