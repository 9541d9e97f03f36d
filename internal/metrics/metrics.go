// Package metrics collects operational metrics for the MCP server: backend API
// requests, tool executions and response shaping decisions.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "devops_mcp"

// Prometheus metric labels
const (
	labelTool   = "tool"
	labelStatus = "status"
	labelMode   = "mode"
)

// Metrics tracks operational metrics with both internal counters and Prometheus metrics.
// Each instance owns its registry.
type Metrics struct {
	// Request metrics (internal atomic counters for fast access)
	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
	retriedRequests    atomic.Uint64

	// Latency tracking
	totalLatency atomic.Int64 // microseconds
	latencyCount atomic.Uint64
	maxLatency   atomic.Int64
	minLatency   atomic.Int64

	rateLimitHits    atomic.Uint64
	workItemsFetched atomic.Uint64
	fieldCorrections atomic.Uint64

	// Error tracking by status code
	errorsMu       sync.RWMutex
	errorsByStatus map[int]uint64

	// Tool usage tracking
	toolsMu     sync.RWMutex
	toolUsage   map[string]uint64
	toolErrors  map[string]uint64
	toolLatency map[string]int64 // microseconds

	// Shaping decisions by mode
	shapingMu    sync.RWMutex
	shapingModes map[string]uint64

	logger   *zap.Logger
	registry *prometheus.Registry

	// Prometheus metrics
	promRequestsTotal      prometheus.Counter
	promRequestsFailed     prometheus.Counter
	promRequestsRetried    prometheus.Counter
	promRateLimitHits      prometheus.Counter
	promRequestLatency     prometheus.Histogram
	promErrorsByStatus     *prometheus.CounterVec
	promToolCalls          *prometheus.CounterVec
	promToolErrors         *prometheus.CounterVec
	promToolLatency        *prometheus.HistogramVec
	promResponseModes      *prometheus.CounterVec
	promResponseBytes      prometheus.Histogram
	promWorkItemsFetched   prometheus.Counter
	promFieldNormalization prometheus.Counter
}

// New creates a new metrics tracker with Prometheus integration
func New(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		errorsByStatus: make(map[int]uint64),
		toolUsage:      make(map[string]uint64),
		toolErrors:     make(map[string]uint64),
		toolLatency:    make(map[string]int64),
		shapingModes:   make(map[string]uint64),
		logger:         logger,
		registry:       reg,

		promRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of API requests made to Azure DevOps",
		}),
		promRequestsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Total number of failed API requests",
		}),
		promRequestsRetried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_retried_total",
			Help:      "Total number of retried API requests",
		}),
		promRateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of client-side rate limit waits and 429 responses",
		}),
		promRequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		promErrorsByStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_by_status_total",
			Help:      "Errors by HTTP status code",
		}, []string{labelStatus}),
		promToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls, labeled by tool name",
		}, []string{labelTool}),
		promToolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Total number of tool errors, labeled by tool name",
		}, []string{labelTool}),
		promToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Tool execution latency in seconds, labeled by tool name",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{labelTool}),
		promResponseModes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_mode_total",
			Help:      "Shaped responses by mode (raw, summary, truncated_summary, size_warning, aggregation)",
		}, []string{labelMode}),
		promResponseBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_bytes",
			Help:      "Canonical serialized size of results before shaping",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 12), // 1KiB to 2MiB
		}),
		promWorkItemsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_fetched_total",
			Help:      "Total number of work items fetched from Azure DevOps",
		}),
		promFieldNormalization: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wiql_field_corrections_total",
			Help:      "Total number of WIQL field references rewritten to canonical names",
		}),
	}

	// Initialize min latency to max value
	m.minLatency.Store(int64(time.Hour))

	return m
}

// RecordRequest records a backend API request
func (m *Metrics) RecordRequest(success bool, latency time.Duration, statusCode int) {
	m.totalRequests.Add(1)
	m.promRequestsTotal.Inc()
	m.promRequestLatency.Observe(latency.Seconds())

	if success {
		m.successfulRequests.Add(1)
	} else {
		m.failedRequests.Add(1)
		m.promRequestsFailed.Inc()
		m.recordErrorStatus(statusCode)
	}

	m.recordLatency(latency)
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry() {
	m.retriedRequests.Add(1)
	m.promRequestsRetried.Inc()
}

// RecordRateLimitHit records a rate limit hit
func (m *Metrics) RecordRateLimitHit() {
	m.rateLimitHits.Add(1)
	m.promRateLimitHits.Inc()
}

// RecordWorkItemsFetched counts work items returned by a batch fetch.
func (m *Metrics) RecordWorkItemsFetched(n int) {
	if n <= 0 {
		return
	}
	m.workItemsFetched.Add(uint64(n))
	m.promWorkItemsFetched.Add(float64(n))
}

// RecordNormalization counts WIQL field references that were rewritten.
func (m *Metrics) RecordNormalization(corrections int) {
	if corrections <= 0 {
		return
	}
	m.fieldCorrections.Add(uint64(corrections))
	m.promFieldNormalization.Add(float64(corrections))
}

// RecordShaping records one response shaping decision and the measured size of
// the full result.
func (m *Metrics) RecordShaping(mode string, bytes int) {
	m.shapingMu.Lock()
	m.shapingModes[mode]++
	m.shapingMu.Unlock()

	m.promResponseModes.WithLabelValues(mode).Inc()
	m.promResponseBytes.Observe(float64(bytes))
}

// RecordToolExecution records tool usage (both internal counters and Prometheus)
func (m *Metrics) RecordToolExecution(toolName string, success bool, latency time.Duration) {
	m.toolsMu.Lock()
	m.toolUsage[toolName]++
	if !success {
		m.toolErrors[toolName]++
	}

	// Rolling average in float64 to avoid integer overflow
	if latency > 0 {
		currentLatency := m.toolLatency[toolName]
		count := float64(m.toolUsage[toolName])
		avgLatency := (float64(currentLatency)*(count-1) + float64(latency.Microseconds())) / count
		m.toolLatency[toolName] = int64(avgLatency)
	}
	m.toolsMu.Unlock()

	m.promToolCalls.WithLabelValues(toolName).Inc()
	m.promToolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
	if !success {
		m.promToolErrors.WithLabelValues(toolName).Inc()
	}
}

func (m *Metrics) recordLatency(latency time.Duration) {
	latencyUs := latency.Microseconds()

	m.totalLatency.Add(latencyUs)
	m.latencyCount.Add(1)

	for {
		currentMax := m.maxLatency.Load()
		if latencyUs <= currentMax {
			break
		}
		if m.maxLatency.CompareAndSwap(currentMax, latencyUs) {
			break
		}
	}

	for {
		currentMin := m.minLatency.Load()
		if latencyUs >= currentMin {
			break
		}
		if m.minLatency.CompareAndSwap(currentMin, latencyUs) {
			break
		}
	}
}

func (m *Metrics) recordErrorStatus(statusCode int) {
	if statusCode == 0 {
		return
	}

	m.errorsMu.Lock()
	m.errorsByStatus[statusCode]++
	m.errorsMu.Unlock()

	m.promErrorsByStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// GetStats returns current statistics
func (m *Metrics) GetStats() Stats {
	m.errorsMu.RLock()
	errorsByStatus := make(map[int]uint64, len(m.errorsByStatus))
	for k, v := range m.errorsByStatus {
		errorsByStatus[k] = v
	}
	m.errorsMu.RUnlock()

	m.toolsMu.RLock()
	toolUsage := make(map[string]uint64, len(m.toolUsage))
	toolErrors := make(map[string]uint64, len(m.toolErrors))
	toolLatency := make(map[string]time.Duration, len(m.toolLatency))
	for k, v := range m.toolUsage {
		toolUsage[k] = v
	}
	for k, v := range m.toolErrors {
		toolErrors[k] = v
	}
	for k, v := range m.toolLatency {
		toolLatency[k] = time.Duration(v) * time.Microsecond
	}
	m.toolsMu.RUnlock()

	m.shapingMu.RLock()
	shapingModes := make(map[string]uint64, len(m.shapingModes))
	for k, v := range m.shapingModes {
		shapingModes[k] = v
	}
	m.shapingMu.RUnlock()

	latencyCount := m.latencyCount.Load()
	var avgLatency time.Duration
	if latencyCount > 0 {
		avgLatencyMicros := float64(m.totalLatency.Load()) / float64(latencyCount)
		avgLatency = time.Duration(avgLatencyMicros) * time.Microsecond
	}

	minLatency := time.Duration(m.minLatency.Load()) * time.Microsecond
	if latencyCount == 0 {
		minLatency = 0
	}

	return Stats{
		TotalRequests:      m.totalRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		RetriedRequests:    m.retriedRequests.Load(),
		RateLimitHits:      m.rateLimitHits.Load(),
		WorkItemsFetched:   m.workItemsFetched.Load(),
		FieldCorrections:   m.fieldCorrections.Load(),
		AverageLatency:     avgLatency,
		MaxLatency:         time.Duration(m.maxLatency.Load()) * time.Microsecond,
		MinLatency:         minLatency,
		ErrorsByStatus:     errorsByStatus,
		ToolUsage:          toolUsage,
		ToolErrors:         toolErrors,
		ToolLatency:        toolLatency,
		ShapingModes:       shapingModes,
	}
}

// LogStats logs current statistics
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	var errorRate float64
	if stats.TotalRequests > 0 {
		errorRate = float64(stats.FailedRequests) / float64(stats.TotalRequests) * 100
	}

	m.logger.Info("Operational metrics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Float64("error_rate_pct", errorRate),
		zap.Uint64("retried_requests", stats.RetriedRequests),
		zap.Uint64("rate_limit_hits", stats.RateLimitHits),
		zap.Uint64("work_items_fetched", stats.WorkItemsFetched),
		zap.Duration("avg_latency", stats.AverageLatency),
		zap.Any("tool_usage", stats.ToolUsage),
		zap.Any("shaping_modes", stats.ShapingModes),
	)
}

// Stats represents current metrics
type Stats struct {
	TotalRequests      uint64                   `json:"total_requests"`
	SuccessfulRequests uint64                   `json:"successful_requests"`
	FailedRequests     uint64                   `json:"failed_requests"`
	RetriedRequests    uint64                   `json:"retried_requests"`
	RateLimitHits      uint64                   `json:"rate_limit_hits"`
	WorkItemsFetched   uint64                   `json:"work_items_fetched"`
	FieldCorrections   uint64                   `json:"field_corrections"`
	AverageLatency     time.Duration            `json:"average_latency_ns"`
	MaxLatency         time.Duration            `json:"max_latency_ns"`
	MinLatency         time.Duration            `json:"min_latency_ns"`
	ErrorsByStatus     map[int]uint64           `json:"errors_by_status"`
	ToolUsage          map[string]uint64        `json:"tool_usage"`
	ToolErrors         map[string]uint64        `json:"tool_errors"`
	ToolLatency        map[string]time.Duration `json:"tool_latency_ns"`
	ShapingModes       map[string]uint64        `json:"shaping_modes"`
}

// Registry returns the instance's Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the instance's metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
