// Package middleware provides HTTP middleware for the web server.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/JonMunkholm/sheets/internal/logging"
)

type logFieldsKey struct{}

// logFields collects attributes that inner handlers add to the access log
// line of their request.
type logFields struct {
	mu    sync.Mutex
	attrs []any
}

// AddLogFields appends key/value pairs to the access log entry of the
// request carried by ctx. It is a no-op outside Logger.
func AddLogFields(ctx context.Context, args ...any) {
	lf, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return
	}
	lf.mu.Lock()
	lf.attrs = append(lf.attrs, args...)
	lf.mu.Unlock()
}

// Logger writes one structured access log line per request with method,
// path, status, size, duration and client address, plus anything inner
// handlers added with AddLogFields. Server errors log at error level.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lf := &logFields{}
		r = r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, lf))

		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"bytes", ww.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ClientIP(r),
		}
		lf.mu.Lock()
		attrs = append(attrs, lf.attrs...)
		lf.mu.Unlock()

		logger := logging.FromContext(r.Context())
		if ww.status >= http.StatusInternalServerError {
			logger.Error("request", attrs...)
			return
		}
		logger.Info("request", attrs...)
	})
}

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
