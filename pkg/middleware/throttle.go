package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Gate decides whether a request may proceed. Satisfied by
// *remediation.Throttle.
type Gate interface {
	Allow() bool
	RetryAfter() time.Duration
}

// Throttle rejects requests the gate does not allow. An open circuit answers
// 503 with Retry-After, a plain rate limit answers 429.
func Throttle(g Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			if wait := g.RetryAfter(); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"circuit_open","message":"Service temporarily unavailable"}`))
				return
			}
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","message":"Too many requests"}`))
		})
	}
}
