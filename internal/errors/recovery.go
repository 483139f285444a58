package errors

import (
	"net/http"
	"runtime/debug"

	"github.com/mafu-labs/growthsim/internal/logging"
)

// RecoveryMiddleware returns a middleware that recovers from panics in
// simulation and solver handlers and answers with a 500.
func RecoveryMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					fields := map[string]interface{}{}
					if r != nil {
						fields = logging.RequestFields(r)
						fields["query"] = r.URL.RawQuery
					}
					fields["error"] = rec
					fields["stack"] = string(debug.Stack())

					logger.Error("Recovered from panic", fields)

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorHandler is a middleware that logs every response with a status >= 400.
func ErrorHandler(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			if rw.status >= http.StatusBadRequest {
				fields := logging.RequestFields(r)
				fields["status"] = rw.status
				fields["query"] = r.URL.RawQuery
				fields["ip"] = r.RemoteAddr
				logger.Warn("Request error", fields)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before writing the header.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
