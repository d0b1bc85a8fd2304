package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-spectra/logging"
)

// HeaderRequestID echoes the request id assigned by logRequests.
const HeaderRequestID = "X-Request-ID"

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// logRequests tags the request context with a request id, bounds it with the
// request timeout and logs one line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := logging.ContextWithFields(r.Context(), logging.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		fields := logging.Fields{
			"status":      rec.status,
			"bytes":       rec.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		logger := s.logger.WithContext(ctx)
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("Request completed with server error", fields)
		} else {
			logger.Info("Request completed", fields)
		}
	})
}
