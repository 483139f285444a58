package logging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware returns a middleware that logs the start and end of each request
// and puts a request-scoped logger into the request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			fields := RequestFields(r)
			fields["remote"] = r.RemoteAddr
			requestLogger := logger.WithFields(fields)

			requestLogger.Debug("Request started")

			ctx := context.WithValue(r.Context(), ctxLoggerKey{}, &CtxLogger{requestLogger})
			next.ServeHTTP(ww, r.WithContext(ctx))

			latency := time.Since(start)
			fields = map[string]interface{}{
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"latency_ms": float64(latency.Microseconds()) / 1000.0,
				"user_agent": r.UserAgent(),
			}
			if ww.Status() >= 400 {
				fields["error"] = http.StatusText(ww.Status())
			}

			requestLogger.WithFields(fields).Info("Request completed")
		})
	}
}

// simulationsPath prefixes the routes addressing one simulation job.
const simulationsPath = "/api/v1/simulations/"

// RequestFields returns the log fields identifying r. Requests addressing a
// single simulation job also carry its simulation_id. Routing has not run
// yet in outer middleware, so the ID is read from the path.
func RequestFields(r *http.Request) map[string]interface{} {
	fields := map[string]interface{}{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}
	if id := simulationID(r.URL.Path); id != "" {
		fields["simulation_id"] = id
	}
	return fields
}

func simulationID(path string) string {
	id, ok := strings.CutPrefix(path, simulationsPath)
	if !ok || id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
