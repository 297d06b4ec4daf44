package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/formatsync/internal/logging"
)

// quietPaths are polled or posted to continuously by bridges and dashboards.
var quietPaths = map[string]bool{
	"/api/lines":  true,
	"/api/status": true,
	"/api/health": true,
}

// HTTPLoggingMiddleware logs HTTP requests with levels based on status codes.
// Streams are logged when they open since they only complete on disconnect.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path

	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" && !strings.Contains(query, "auth=") {
		logAttrs = append(logAttrs, slog.String("query", query))
	}
	if userAgent := ctx.Header("User-Agent"); userAgent != "" {
		logAttrs = append(logAttrs, slog.String("user_agent", userAgent))
	}

	if strings.HasSuffix(path, "/stream") || path == "/api/events" {
		logger.LogAttrs(ctx.Context(), slog.LevelDebug, "Event stream opened", logAttrs...)
	}

	next(ctx)

	status := ctx.Status()
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	message := "HTTP request completed"
	switch {
	case status >= 500:
		logger.LogAttrs(ctx.Context(), slog.LevelError, message, logAttrs...)
	case status >= 400:
		logger.LogAttrs(ctx.Context(), slog.LevelWarn, message, logAttrs...)
	case method == http.MethodOptions, quietPaths[path]:
		logger.LogAttrs(ctx.Context(), slog.LevelDebug, message, logAttrs...)
	default:
		logger.LogAttrs(ctx.Context(), slog.LevelInfo, message, logAttrs...)
	}
}
