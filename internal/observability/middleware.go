package observability

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"

	"tube-accounts/internal/httpx"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	bytes       int
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.statusCode = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// RequestLoggingMiddleware writes one http_request line per request, at warn
// level for server errors. The logged ip is always the peer address; a
// forwarded header is recorded next to it, never in its place.
func RequestLoggingMiddleware(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		fields := map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      recorder.statusCode,
			"bytes":       recorder.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          httpx.ClientIP(r, false),
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			fields["forwarded_for"] = forwarded
		}

		if recorder.statusCode >= http.StatusInternalServerError {
			logger.Warn("http_request", fields)
			return
		}
		logger.Info("http_request", fields)
	})
}

// RecoverMiddleware turns a handler panic into the 500 error envelope and a
// Sentry event carrying the request.
func RecoverMiddleware(logger *Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			hub := sentry.CurrentHub().Clone()
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetRequest(r)
				scope.SetExtra("stack", string(debug.Stack()))
				hub.CaptureException(fmt.Errorf("panic in request: %v", rec))
			})

			logger.Error("panic_recovered", map[string]any{
				"path":   r.URL.Path,
				"method": r.Method,
				"panic":  fmt.Sprint(rec),
			})

			httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
