package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/EndpointKit/pkg/metrics"
)

type panicCounter struct {
	metrics.NoOpProvider
	locations []string
}

func (p *panicCounter) RecordPanic(location string) {
	p.locations = append(p.locations, location)
}

func TestPanicRecovery(t *testing.T) {
	counter := &panicCounter{}
	original := metrics.GetProvider()
	metrics.SetProvider(counter)
	defer metrics.SetProvider(original)

	t.Run("panic becomes a JSON 500", func(t *testing.T) {
		counter.locations = nil
		h := PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("snapshot exploded")
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/cache/save", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "internal_error", body["error"])
		assert.Equal(t, "panic in POST /api/cache/save: snapshot exploded", body["message"])
		assert.Equal(t, []string{panicLocation}, counter.locations)
	})

	t.Run("normal handlers pass through", func(t *testing.T) {
		counter.locations = nil
		h := PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
		assert.Empty(t, counter.locations)
	})

	t.Run("aborted handlers are re-panicked", func(t *testing.T) {
		counter.locations = nil
		h := PanicRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
		assert.Empty(t, counter.locations)
	})
}
