// Package middleware holds the HTTP middleware shared by the dashboard and
// by applications embedding the cache and monitor.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/bitechdev/EndpointKit/pkg/logger"
	"github.com/bitechdev/EndpointKit/pkg/metrics"
)

const panicLocation = "http_handler"

// PanicRecovery recovers a panicking handler, reports the panic to the logger
// (and through it the error tracker), counts it and answers 500 with a JSON body.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rcv := recover(); rcv != nil {
				if rcv == http.ErrAbortHandler {
					panic(rcv)
				}
				metrics.GetProvider().RecordPanic(panicLocation)

				err := logger.HandlePanic(r.Method+" "+r.URL.Path, rcv)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "internal_error",
					"message": err.Error(),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
