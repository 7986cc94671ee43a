package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/EndpointKit/pkg/cache"
	"github.com/bitechdev/EndpointKit/pkg/metrics"
	"github.com/bitechdev/EndpointKit/pkg/monitor"
)

type fakeCache struct {
	stats   cache.Statistics
	saveErr error
	saves   int
}

func (f *fakeCache) Stats() cache.Statistics { return f.stats }

func (f *fakeCache) SaveToDisk(ctx context.Context) error {
	f.saves++
	return f.saveErr
}

type fakeEngine struct {
	snapshot   monitor.Snapshot
	start, end time.Time
}

func (f *fakeEngine) GetMetrics(ctx context.Context) monitor.Snapshot { return f.snapshot }

func (f *fakeEngine) GenerateReport(ctx context.Context, start, end time.Time) (*monitor.Report, error) {
	f.start, f.end = start, end
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, errors.New("report period ends before it starts")
	}
	return &monitor.Report{ID: "r-1", PeriodStart: start, PeriodEnd: end, Metrics: f.snapshot}, nil
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestCacheStats(t *testing.T) {
	c := &fakeCache{stats: cache.Statistics{Entries: 3, Hits: 9, Misses: 1, HitRate: 90}}
	router := NewHandler(c, nil).Router()

	rec := serve(t, router, http.MethodGet, "/api/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got cache.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.Entries)
	assert.Equal(t, 90.0, got.HitRate)
}

func TestCacheSave(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"saved", nil, http.StatusOK},
		{"no adapter", cache.ErrNoAdapter, http.StatusConflict},
		{"closed", cache.ErrClosed, http.StatusServiceUnavailable},
		{"backend failure", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCache{saveErr: tt.err}
			rec := serve(t, NewHandler(c, nil).Router(), http.MethodPost, "/api/cache/save")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, 1, c.saves)
		})
	}
}

func TestCacheSaveRequiresPost(t *testing.T) {
	c := &fakeCache{}
	rec := serve(t, NewHandler(c, nil).Router(), http.MethodGet, "/api/cache/save")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, c.saves)
}

func TestEngineMetrics(t *testing.T) {
	e := &fakeEngine{snapshot: monitor.Snapshot{
		Requests:      monitor.RequestMetrics{Total: 10, Failure: 1, ErrorRate: 10},
		ActiveMetrics: []string{"cpu", "memory"},
	}}
	rec := serve(t, NewHandler(nil, e).Router(), http.MethodGet, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var got monitor.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(10), got.Requests.Total)
	assert.Equal(t, []string{"cpu", "memory"}, got.ActiveMetrics)
}

func TestReport(t *testing.T) {
	e := &fakeEngine{}
	router := NewHandler(nil, e).Router()

	rec := serve(t, router, http.MethodGet, "/api/report?start=2026-01-01T00:00:00Z&end=2026-01-02T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), e.start.UTC())
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), e.end.UTC())

	var got monitor.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "r-1", got.ID)

	rec = serve(t, router, http.MethodGet, "/api/report")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, e.start.IsZero())
	assert.True(t, e.end.IsZero())
}

func TestReportRejectsBadPeriod(t *testing.T) {
	router := NewHandler(nil, &fakeEngine{}).Router()

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"bad start", "start=yesterday", "invalid_start"},
		{"bad end", "end=2026-13-01", "invalid_end"},
		{"reversed", "start=2026-01-02T00:00:00Z&end=2026-01-01T00:00:00Z", "invalid_period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, router, http.MethodGet, "/api/report?"+tt.query)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestMissingSources(t *testing.T) {
	router := NewHandler(nil, nil).Router()

	for _, target := range []string{"/api/metrics", "/api/report", "/api/cache/stats"} {
		rec := serve(t, router, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	rec := serve(t, router, http.MethodPost, "/api/cache/save")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrometheusRoutes(t *testing.T) {
	provider := metrics.NewPrometheusProvider(nil)
	router := NewHandler(&fakeCache{}, &fakeEngine{}, WithMetricsProvider(provider)).Router()

	serve(t, router, http.MethodGet, "/api/cache/stats")
	serve(t, router, http.MethodGet, "/api/cache/stats")

	rec := serve(t, router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `path="/api/cache/stats"`), "request metrics are labelled by route template")

	count, err := testutil.GatherAndCount(provider.Registry(), "endpointkit_http_requests_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)
}

func TestRoutesAddedLater(t *testing.T) {
	router := NewHandler(nil, nil).Router()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	assert.Equal(t, http.StatusNoContent, serve(t, router, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, router, http.MethodGet, "/nope").Code)
}

func TestPanicInSourceIsRecovered(t *testing.T) {
	router := NewHandler(panickingCache{}, nil).Router()
	rec := serve(t, router, http.MethodGet, "/api/cache/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panickingCache struct{}

func (panickingCache) Stats() cache.Statistics              { panic("stats exploded") }
func (panickingCache) SaveToDisk(ctx context.Context) error { return nil }
