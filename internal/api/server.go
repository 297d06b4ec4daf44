package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/formatsync/internal/api/models"
	"github.com/smazurov/formatsync/internal/devices"
	"github.com/smazurov/formatsync/internal/events"
	"github.com/smazurov/formatsync/internal/logging"
	"github.com/smazurov/formatsync/internal/logsource"
	"github.com/smazurov/formatsync/internal/negotiation"
	"github.com/smazurov/formatsync/internal/pipeline"
	"github.com/smazurov/formatsync/internal/version"
)

const authRealm = `Basic realm="formatsync"`

// Pipeline is the ingest side of the detection pipeline.
type Pipeline interface {
	OnLine(line string) bool
	OnNowPlayingChanged(trackID *string, startedAt time.Time)
	Status() pipeline.Status
}

// Catalog is the device catalog.
type Catalog interface {
	Snapshot() devices.Snapshot
	Select(id string) error
	Refresh(ctx context.Context, cause string) error
}

// AppliedSource reports the last applied format.
type AppliedSource interface {
	LastApplied() (negotiation.Applied, bool)
}

// LogSource reports the log stream supervisor state.
type LogSource interface {
	Info() logsource.Info
}

// Options configures the API server.
type Options struct {
	AuthUsername   string
	AuthPassword   string
	CORSOrigin     string
	Bus            *events.Bus
	Pipeline       Pipeline
	Catalog        Catalog
	Applied        AppliedSource
	LogSource      LogSource
	MetricsHandler http.Handler // optional Prometheus handler
}

// Server is the observer API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	opts       Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials, err := requestCredentials(ctx)
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required", err)
			return
		}

		user, pass, ok := strings.Cut(credentials, ":")
		if !ok || user != username || pass != password {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// requestCredentials reads "user:pass" from the Authorization header, or
// from the auth query parameter for EventSource clients.
func requestCredentials(ctx huma.Context) (string, error) {
	encoded := ctx.Query("auth")
	if header := ctx.Header("Authorization"); header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", errors.New("unsupported authentication type")
		}
		encoded = header[len(prefix):]
	}
	if encoded == "" {
		return "", errors.New("no credentials")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("malformed credentials")
	}
	return string(decoded), nil
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if opts.CORSOrigin != "" {
		corsConfig.AllowOrigin = opts.CORSOrigin
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("formatsync API", version.String())
	config.Info.Description = "Keeps the output device sample format in sync with the playing track"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	bus := opts.Bus
	if bus == nil {
		bus = events.New()
	}

	server := &Server{
		api:      api,
		mux:      mux,
		opts:     opts,
		eventBus: bus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and all connections, including SSE streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"system"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerPlaybackRoutes()
	s.registerDeviceRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
