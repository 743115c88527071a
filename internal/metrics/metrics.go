package metrics

import (
	"runtime"
	"strconv"
	"time"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Engine call metrics
	AdapterRequests *CounterVec   // labels: strategy
	AdapterErrors   *CounterVec   // labels: strategy, code
	AdapterLatency  *HistogramVec // labels: strategy
	AdapterResults  *HistogramVec // labels: strategy

	// Run metrics
	RunsTotal        *CounterVec // labels: status
	ActiveRuns       *Gauge
	QueriesEvaluated *Counter
	RunFailures      *Counter
	RunDuration      *Histogram

	// Engine health, refreshed by the Collector
	EngineUp     *GaugeVec // labels: engine
	EnginePoints *GaugeVec // labels: engine, collection

	// Cache metrics
	CacheHits   *CounterVec // labels: type
	CacheMisses *CounterVec // labels: type
	CacheSize   *GaugeVec   // labels: type

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Gauge // in seconds

	startTime time.Time
}

// New creates a new metrics instance with all metrics initialized.
func New() *Metrics {
	return &Metrics{
		AdapterRequests: NewCounterVec(
			"muvera_adapter_requests_total",
			"Total number of retrieval strategy calls",
			[]string{"strategy"},
		),
		AdapterErrors: NewCounterVec(
			"muvera_adapter_errors_total",
			"Total number of failed retrieval strategy calls",
			[]string{"strategy", "code"},
		),
		AdapterLatency: NewHistogramVec(
			"muvera_adapter_latency_ms",
			"Retrieval strategy call latency in milliseconds",
			[]string{"strategy"},
			DefaultLatencyBuckets,
		),
		AdapterResults: NewHistogramVec(
			"muvera_adapter_results",
			"Number of hits returned per strategy call",
			[]string{"strategy"},
			[]float64{0, 1, 5, 10, 20, 50, 100},
		),

		RunsTotal: NewCounterVec(
			"muvera_runs_total",
			"Total number of evaluation runs",
			[]string{"status"},
		),
		ActiveRuns: NewGauge(
			"muvera_active_runs",
			"Number of evaluation runs in progress",
			nil,
		),
		QueriesEvaluated: NewCounter(
			"muvera_queries_evaluated_total",
			"Total number of queries evaluated across all strategies",
			nil,
		),
		RunFailures: NewCounter(
			"muvera_run_failed_calls_total",
			"Total number of failed strategy calls reported by completed runs",
			nil,
		),
		RunDuration: NewHistogram(
			"muvera_run_duration_seconds",
			"Evaluation run duration in seconds",
			[]float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		),

		EngineUp: NewGaugeVec(
			"muvera_engine_up",
			"Whether the search engine answered its last health check",
			[]string{"engine"},
		),
		EnginePoints: NewGaugeVec(
			"muvera_engine_points",
			"Number of indexed points reported by the engine",
			[]string{"engine", "collection"},
		),

		CacheHits: NewCounterVec(
			"muvera_cache_hits_total",
			"Total number of embedding cache hits",
			[]string{"type"},
		),
		CacheMisses: NewCounterVec(
			"muvera_cache_misses_total",
			"Total number of embedding cache misses",
			[]string{"type"},
		),
		CacheSize: NewGaugeVec(
			"muvera_cache_size",
			"Number of entries in the embedding cache",
			[]string{"type"},
		),

		BusEventsPublished: NewCounterVec(
			"muvera_bus_events_published_total",
			"Total number of events published",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"muvera_bus_event_latency_ms",
			"Event publish latency in milliseconds",
			[]string{"topic"},
			[]float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
		),
		BusErrors: NewCounterVec(
			"muvera_bus_errors_total",
			"Total number of failed event publishes",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"muvera_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"muvera_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		),
		HTTPRequestsInFlight: NewGauge(
			"muvera_http_requests_in_flight",
			"Number of HTTP requests being served",
			nil,
		),

		GoroutineCount: NewGauge(
			"muvera_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"muvera_memory_bytes",
			"Heap memory in use in bytes",
			nil,
		),
		Uptime: NewGauge(
			"muvera_uptime_seconds",
			"Seconds since the process started",
			nil,
		),

		startTime: time.Now(),
	}
}

// RecordAdapterCall records one strategy call.
func (m *Metrics) RecordAdapterCall(strategy string, latency time.Duration, results int, err error) {
	m.AdapterRequests.WithLabels(strategy).Inc()
	m.AdapterLatency.WithLabels(strategy).Observe(float64(latency.Microseconds()) / 1000)
	if err != nil {
		code := apperrors.CodeOf(err)
		if code == "" {
			code = apperrors.CodeAdapter
		}
		m.AdapterErrors.WithLabels(strategy, code).Inc()
		return
	}
	m.AdapterResults.WithLabels(strategy).Observe(float64(results))
}

// RunStarted marks a run as in progress.
func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished records the outcome of a run started with RunStarted.
func (m *Metrics) RunFinished(duration time.Duration, err error) {
	m.ActiveRuns.Dec()
	m.RunDuration.Observe(duration.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabels(status).Inc()
}

// RecordQueryEvaluated counts a query processed by every strategy.
func (m *Metrics) RecordQueryEvaluated() {
	m.QueriesEvaluated.Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabels(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabels(cacheType).Inc()
}

// UpdateCacheSize updates the cache size gauge.
func (m *Metrics) UpdateCacheSize(cacheType string, size int) {
	m.CacheSize.WithLabels(cacheType).Set(float64(size))
}

// RecordBusPublish records a bus publish.
func (m *Metrics) RecordBusPublish(topic string, latency time.Duration, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	m.BusEventLatency.WithLabels(topic).Observe(float64(latency.Microseconds()) / 1000)
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records a served HTTP request.
func (m *Metrics) RecordHTTP(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabels(method, normalizePath(path), statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, normalizePath(path)).Observe(duration.Seconds())
}

// SetEngineUp records the result of an engine health check.
func (m *Metrics) SetEngineUp(engine string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.EngineUp.WithLabels(engine).Set(v)
}

// SetEnginePoints records the number of points an engine reports.
func (m *Metrics) SetEnginePoints(engine, collection string, points uint64) {
	m.EnginePoints.WithLabels(engine, collection).Set(float64(points))
}

// UpdateSystemMetrics refreshes goroutine, memory and uptime gauges.
func (m *Metrics) UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.MemoryUsage.Set(float64(ms.HeapAlloc))
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// statusCode converts an HTTP status code to a metric label.
func statusCode(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	switch code {
	case 200, 201, 204, 400, 404, 429, 500, 502, 503, 504:
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
