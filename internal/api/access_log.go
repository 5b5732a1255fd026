package api

import (
	"net/http"
	"time"

	"grimm.is/ruleaudit/internal/clock"
)

// accessLogWriter wraps http.ResponseWriter to capture the status code
type accessLogWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *accessLogWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *accessLogWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// accessLogger logs every request.
func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()
		rw := &accessLogWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := clock.Since(start)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"client", getClientIP(r, s.proxies),
			"status", rw.status,
			"size", rw.size,
			"duration", duration.Round(time.Microsecond).String())
	})
}

// instrument records request count and latency for one route. The route
// pattern is the metric label so path parameters do not explode
// cardinality.
func (s *Server) instrument(pattern string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()
		rw := &accessLogWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.metrics.RecordAPIRequest(r.Method, pattern, rw.status, clock.Since(start).Seconds())
	})
}
