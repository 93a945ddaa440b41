package server

import (
	"net/http"
	"time"
)

// statusRecorder captures the response status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if h.opts.metrics == nil {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		next(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}

		h.opts.metrics.Request(r.Context(), route, status, time.Since(start))
	}
}
