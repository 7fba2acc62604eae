// Package telemetry holds the Prometheus collectors shared by railpanel's
// adapters and pipeline. All recording methods are safe on a nil *Metrics so
// components can be built without metrics in tests.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "railpanel"

// Cache lookup outcomes.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheCorrupt = "corrupt"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	APIRequests     *prometheus.CounterVec
	APIDuration     *prometheus.HistogramVec
	APIRetries      *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	CacheWriteFails prometheus.Counter
	RunOutcomes     *prometheus.CounterVec
	PipelineRuns    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them, together with the Go
// and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "testrail_requests_total",
				Help:      "TestRail API calls by endpoint and final HTTP status (0 when no response).",
			},
			[]string{"endpoint", "status"},
		),
		APIDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "testrail_request_duration_seconds",
				Help:      "TestRail API call duration including retries.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),
		APIRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "testrail_retries_total",
				Help:      "TestRail API retry attempts by endpoint.",
			},
			[]string{"endpoint"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Build cache lookups by backend and result.",
			},
			[]string{"backend", "result"},
		),
		CacheWriteFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_write_failures_total",
				Help:      "Build cache writes that failed.",
			},
		),
		RunOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_processed_total",
				Help:      "Processed runs by annotation.",
			},
			[]string{"annotation"},
		),
		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Pipeline invocations by final state.",
			},
			[]string{"state"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API server request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.APIRequests,
		m.APIDuration,
		m.APIRetries,
		m.CacheLookups,
		m.CacheWriteFails,
		m.RunOutcomes,
		m.PipelineRuns,
		m.HTTPDuration,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAPICall records one logical TestRail call.
func (m *Metrics) ObserveAPICall(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.APIDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncRetry records a retried TestRail request.
func (m *Metrics) IncRetry(endpoint string) {
	if m == nil {
		return
	}
	m.APIRetries.WithLabelValues(endpoint).Inc()
}

// ObserveCacheLookup records a cache lookup result (CacheHit, CacheMiss or CacheCorrupt).
func (m *Metrics) ObserveCacheLookup(backend, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(backend, result).Inc()
}

// IncCacheWriteFailure records a failed cache write.
func (m *Metrics) IncCacheWriteFailure() {
	if m == nil {
		return
	}
	m.CacheWriteFails.Inc()
}

// ObserveRun records a processed run's annotation.
func (m *Metrics) ObserveRun(annotation string) {
	if m == nil {
		return
	}
	m.RunOutcomes.WithLabelValues(annotation).Inc()
}

// ObservePipeline records a pipeline invocation's final state.
func (m *Metrics) ObservePipeline(state string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(state).Inc()
}

// ObserveHTTP records one API server request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(d.Seconds())
}
