package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gitlab.com/nevasik7/alerting/logger"
)

// HTTPObserver records per-route request metrics
type HTTPObserver interface {
	ObserveHTTP(route string, code int, took time.Duration)
}

type LoggingMiddleware struct {
	Log     logger.Logger
	Metrics HTTPObserver // optional
}

func NewLogging(log logger.Logger, metrics HTTPObserver) *LoggingMiddleware {
	return &LoggingMiddleware{Log: log, Metrics: metrics}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingRW{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		dur := time.Since(start)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if m.Metrics != nil {
			m.Metrics.ObserveHTTP(route, lrw.status, dur)
		}

		msg := "HTTP request, method=%s path=%s status=%d size=%d dur_ms=%d ip=%s sub=%s"
		args := []interface{}{r.Method, r.URL.Path, lrw.status, lrw.size, dur.Milliseconds(), clientIP(r), subjectFromContext(r)}
		if lrw.status >= http.StatusInternalServerError {
			m.Log.Warnf(msg, args...)
			return
		}
		m.Log.Infof(msg, args...)
	})
}

type loggingRW struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *loggingRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingRW) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}
