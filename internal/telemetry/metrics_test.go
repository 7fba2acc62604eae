package telemetry_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *telemetry.Metrics

	assert.NotPanics(t, func() {
		m.ObserveAPICall("get_runs", 200, time.Second)
		m.IncRetry("get_runs")
		m.ObserveCacheLookup("csv", telemetry.CacheHit)
		m.IncCacheWriteFailure()
		m.ObserveRun("ok")
		m.ObservePipeline("done")
		m.ObserveHTTP("GET", "/api/v1/health", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Counters(t *testing.T) {
	m := telemetry.NewMetrics()

	m.ObserveCacheLookup("csv", telemetry.CacheHit)
	m.ObserveCacheLookup("csv", telemetry.CacheHit)
	m.ObserveCacheLookup("csv", telemetry.CacheCorrupt)
	m.IncRetry("get_results_for_run")

	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheLookups.WithLabelValues("csv", telemetry.CacheHit)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("csv", telemetry.CacheCorrupt)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.APIRetries.WithLabelValues("get_results_for_run")), 0)
}

func TestMetrics_Handler(t *testing.T) {
	m := telemetry.NewMetrics()
	m.ObserveRun("partially_failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `railpanel_runs_processed_total{annotation="partially_failed"} 1`))
}
