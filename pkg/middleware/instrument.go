package middleware

import (
	"net/http"
	"time"
)

// RequestRecorder is satisfied by *monitor.Engine
type RequestRecorder interface {
	RecordEndpointRequest(endpoint string, duration time.Duration, success bool, responseSize int64)
}

// responseRecorder captures the status code and body size
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// Instrument records every request with rec. endpoint names the request for
// slow endpoint tracking; nil uses "METHOD path". Responses with a 5xx
// status count as failures.
func Instrument(rec RequestRecorder, endpoint func(*http.Request) string) func(http.Handler) http.Handler {
	if endpoint == nil {
		endpoint = func(r *http.Request) string { return r.Method + " " + r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			rec.RecordEndpointRequest(endpoint(r), time.Since(start), rw.status < http.StatusInternalServerError, rw.bytes)
		})
	}
}
