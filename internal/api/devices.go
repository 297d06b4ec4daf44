package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/formatsync/internal/api/models"
	"github.com/smazurov/formatsync/internal/devices"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "Output devices eligible for synchronization with their supported formats",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		if s.opts.Catalog == nil {
			return nil, huma.Error503ServiceUnavailable("Device catalog not available")
		}
		return &models.DeviceListResponse{Body: models.NewDeviceListData(s.opts.Catalog.Snapshot())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-device",
		Method:      http.MethodPut,
		Path:        "/api/devices/selected",
		Summary:     "Select Device",
		Description: "Pin the output device that follows the playing track",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 503},
	}, func(ctx context.Context, input *models.SelectDeviceRequest) (*models.DeviceListResponse, error) {
		if s.opts.Catalog == nil {
			return nil, huma.Error503ServiceUnavailable("Device catalog not available")
		}
		if err := s.opts.Catalog.Select(input.Body.DeviceID); err != nil {
			return nil, deviceError(err)
		}
		return &models.DeviceListResponse{Body: models.NewDeviceListData(s.opts.Catalog.Snapshot())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "refresh-devices",
		Method:      http.MethodPost,
		Path:        "/api/devices/refresh",
		Summary:     "Refresh Devices",
		Description: "Re-enumerate output devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		if s.opts.Catalog == nil {
			return nil, huma.Error503ServiceUnavailable("Device catalog not available")
		}
		if err := s.opts.Catalog.Refresh(ctx, devices.CauseManual); err != nil {
			return nil, deviceError(err)
		}
		return &models.DeviceListResponse{Body: models.NewDeviceListData(s.opts.Catalog.Snapshot())}, nil
	})
}

// deviceError maps device error codes to HTTP errors.
func deviceError(err error) error {
	switch {
	case devices.HasCode(err, devices.ErrCodeDeviceNotFound):
		return huma.Error404NotFound("Device not found", err)
	case devices.HasCode(err, devices.ErrCodeInvalidProfile):
		return huma.Error400BadRequest("Invalid device profile", err)
	default:
		return huma.Error500InternalServerError("Device operation failed", err)
	}
}
