package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// View lifecycle metrics
	ViewsActive prometheus.Gauge
	ViewsTotal  *prometheus.CounterVec

	// Navigation metrics
	NavigationsTotal *prometheus.CounterVec
	LoadDuration     *prometheus.HistogramVec
	HandoffsTotal    prometheus.Counter

	// Script and bridge metrics
	ScriptErrors    *prometheus.CounterVec
	InjectionsTotal *prometheus.CounterVec
	BridgeMessages  *prometheus.CounterVec

	// Fetch layer metrics
	FetchBytes   prometheus.Histogram
	BreakerState *prometheus.GaugeVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64
	TotalErrors   int64
	ActiveViews   int64
	ActiveStreams int64
	TotalDuration float64 // sum of all request durations
	RequestCount  int64   // count for averaging
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// View lifecycle metrics
		ViewsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webview_views_active",
				Help: "Number of live views",
			},
		),
		ViewsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_views_total",
				Help: "Total number of views created",
			},
			[]string{"engine"},
		),

		// Navigation metrics
		NavigationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_navigations_total",
				Help: "Total number of navigation attempts by outcome",
			},
			[]string{"engine", "result"},
		),
		LoadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webview_load_duration_seconds",
				Help:    "Page load duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"engine"},
		),
		HandoffsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webview_os_handoffs_total",
				Help: "Total number of navigations handed to the OS",
			},
		),

		// Script and bridge metrics
		ScriptErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_script_errors_total",
				Help: "Total number of page script failures",
			},
			[]string{"engine"},
		),
		InjectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_script_injections_total",
				Help: "Total number of script injections by mode",
			},
			[]string{"engine", "mode"},
		),
		BridgeMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_bridge_messages_total",
				Help: "Total number of bridge messages by direction",
			},
			[]string{"direction"},
		),

		// Fetch layer metrics
		FetchBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webview_fetch_response_bytes",
				Help:    "Decoded response body size in bytes",
				Buckets: []float64{1000, 10000, 100000, 1000000, 10000000},
			},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webview_fetch_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webview_ws_connections",
				Help: "Number of active WebSocket event streams",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webview_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webview_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordNavigation records a finished navigation attempt
func (m *Metrics) RecordNavigation(engine, result string, duration time.Duration) {
	m.NavigationsTotal.WithLabelValues(engine, result).Inc()
	m.LoadDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordBlockedNavigation records a navigation refused by policy
func (m *Metrics) RecordBlockedNavigation(engine string) {
	m.NavigationsTotal.WithLabelValues(engine, "blocked").Inc()
}

// RecordHandoff records a navigation handed to the OS
func (m *Metrics) RecordHandoff() {
	m.HandoffsTotal.Inc()
}

// RecordScriptError records a page script failure
func (m *Metrics) RecordScriptError(engine string) {
	m.ScriptErrors.WithLabelValues(engine).Inc()
}

// RecordInjection records a script injection
func (m *Metrics) RecordInjection(engine, mode string) {
	m.InjectionsTotal.WithLabelValues(engine, mode).Inc()
}

// RecordBridgeMessage records a bridge message crossing the boundary
func (m *Metrics) RecordBridgeMessage(direction string) {
	m.BridgeMessages.WithLabelValues(direction).Inc()
}

// RecordFetchSize records a decoded response body size
func (m *Metrics) RecordFetchSize(bytes int) {
	m.FetchBytes.Observe(float64(bytes))
}

// SetBreakerState mirrors a circuit breaker state change
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetViewsActive sets the number of live views
func (m *Metrics) SetViewsActive(count int) {
	m.ViewsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveViews = int64(count)
	m.mu.Unlock()
}

// IncViewsTotal increments the views created counter
func (m *Metrics) IncViewsTotal(engine string) {
	m.ViewsTotal.WithLabelValues(engine).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveStreams++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveStreams--
	m.mu.Unlock()
}

// Snapshot returns current aggregate values for the JSON status endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
