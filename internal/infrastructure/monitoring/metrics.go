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
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	Launches       *prometheus.CounterVec
	Navigations    *prometheus.CounterVec

	// Frame pump metrics
	FramesCaptured  prometheus.Counter
	CaptureFailures prometheus.Counter
	FrameBytes      prometheus.Histogram
	CaptureDuration prometheus.Histogram

	// Input relay metrics
	InputEvents *prometheus.CounterVec

	// Browser operation metrics
	OperationCalls    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
	WSDropped     prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveSessions    int64   `json:"active_sessions"`
	ActiveConnections int64   `json:"active_connections"`
	FramesCaptured    int64   `json:"frames_captured"`
	CaptureFailures   int64   `json:"capture_failures"`
	InputEvents       int64   `json:"input_events"`
	InputFailures     int64   `json:"input_failures"`
	LaunchFailures    int64   `json:"launch_failures"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		stop:      make(chan struct{}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Session metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_sessions_active",
				Help: "Number of live browser sessions",
			},
		),
		Launches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_browser_launches_total",
				Help: "Total number of browser launches",
			},
			[]string{"mode", "status"},
		),
		Navigations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_navigations_total",
				Help: "Total number of navigations",
			},
			[]string{"status"},
		),

		// Frame pump metrics
		FramesCaptured: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_frames_captured_total",
				Help: "Total number of frames captured and broadcast",
			},
		),
		CaptureFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_capture_failures_total",
				Help: "Total number of frame pumps stopped by a capture failure",
			},
		),
		FrameBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_frame_size_bytes",
				Help:    "Encoded frame size in bytes",
				Buckets: prometheus.ExponentialBuckets(4096, 2, 10),
			},
		),
		CaptureDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_capture_duration_seconds",
				Help:    "Screenshot capture duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),

		// Input relay metrics
		InputEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_input_events_total",
				Help: "Total number of relayed input events",
			},
			[]string{"type", "status"},
		),

		// Browser operation metrics
		OperationCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_browser_operations_total",
				Help: "Total number of browser operations",
			},
			[]string{"component", "operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_browser_operation_duration_seconds",
				Help:    "Browser operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"component", "operation"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
		WSDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_ws_dropped_total",
				Help: "Total number of outbound messages dropped for slow clients",
			},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_uptime_seconds",
				Help: "Relay uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime updates the uptime metric until Close is called
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// Close stops the uptime updater.
func (m *Metrics) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordLaunch records a browser launch attempt
func (m *Metrics) RecordLaunch(mode, status string) {
	m.Launches.WithLabelValues(mode, status).Inc()
	if status == "error" {
		m.mu.Lock()
		m.snapshot.LaunchFailures++
		m.mu.Unlock()
	}
}

// RecordNavigation records a navigation attempt
func (m *Metrics) RecordNavigation(status string) {
	m.Navigations.WithLabelValues(status).Inc()
}

// RecordFrame records a captured and broadcast frame
func (m *Metrics) RecordFrame(size int, captureTime time.Duration) {
	m.FramesCaptured.Inc()
	m.FrameBytes.Observe(float64(size))
	m.CaptureDuration.Observe(captureTime.Seconds())

	m.mu.Lock()
	m.snapshot.FramesCaptured++
	m.mu.Unlock()
}

// RecordCaptureFailure records a frame pump stopped by a capture error
func (m *Metrics) RecordCaptureFailure() {
	m.CaptureFailures.Inc()

	m.mu.Lock()
	m.snapshot.CaptureFailures++
	m.mu.Unlock()
}

// RecordInput records a relayed input event
func (m *Metrics) RecordInput(eventType, status string) {
	m.InputEvents.WithLabelValues(eventType, status).Inc()

	m.mu.Lock()
	m.snapshot.InputEvents++
	if status != "success" {
		m.snapshot.InputFailures++
	}
	m.mu.Unlock()
}

// RecordOperation records a browser operation
func (m *Metrics) RecordOperation(component, operation, status string, duration time.Duration) {
	m.OperationCalls.WithLabelValues(component, operation, status).Inc()
	m.OperationDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSDropped counts an outbound message dropped for a slow client
func (m *Metrics) IncWSDropped() {
	m.WSDropped.Inc()
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON stats endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
