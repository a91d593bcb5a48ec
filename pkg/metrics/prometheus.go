// Package metrics provides Prometheus metrics for the ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the ranking service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Recalculation pipeline
	recalculations        *prometheus.CounterVec
	recalculationDuration prometheus.Histogram
	listsWeighted         prometheus.Counter
	listsSkipped          *prometheus.CounterVec
	penaltiesSkipped      *prometheus.CounterVec
	itemsRanked           prometheus.Counter
	triggersCoalesced     prometheus.Counter
	pendingTriggers       prometheus.Gauge

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Storage and locking
	repositoryQueryLatency prometheus.Histogram
	repositoryTx           *prometheus.HistogramVec
	lockAcquire            *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ranking",
		subsystem:        "aggregation",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	msBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	m.recalculations = m.counterVec("recalculations_total",
		"Recalculations by outcome", "status")
	m.recalculationDuration = m.histogram("recalculation_duration_seconds",
		"Wall time of one configuration recalculation", m.histogramBuckets)
	m.listsWeighted = m.counter("lists_weighted_total",
		"Ranked lists whose weight was recomputed")
	m.listsSkipped = m.counterVec("lists_skipped_total",
		"Lists left out of a recalculation", "reason")
	m.penaltiesSkipped = m.counterVec("penalties_skipped_total",
		"Penalties ignored during resolution", "reason")
	m.itemsRanked = m.counter("items_ranked_total",
		"Ranked items materialized")
	m.triggersCoalesced = m.counter("triggers_coalesced_total",
		"Recalculation triggers collapsed into an already queued run")
	m.pendingTriggers = m.gauge("pending_triggers",
		"Configurations with a queued recalculation")

	m.queueSize = m.gauge("queue_size", "Current size of the recalculation queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the recalculation queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0-1)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Tasks enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Tasks dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Failed enqueue attempts")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Time a task spent waiting in the queue", msBuckets)

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a task")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time a worker spent on one task", msBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Tasks that ended in an error")

	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Latency of single store statements", msBuckets)
	m.repositoryTx = m.histogramVec("repository_transaction_duration_seconds",
		"Duration of store transactions", m.histogramBuckets, "backend", "status")
	m.lockAcquire = m.histogramVec("lock_acquire_duration_seconds",
		"Time spent acquiring per-configuration locks", m.histogramBuckets, "backend", "outcome")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", msBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordRecalculation counts a finished recalculation by status.
func RecordRecalculation(status string) {
	globalManager.recalculations.WithLabelValues(status).Inc()
}

// RecordRecalculationDuration observes one recalculation's wall time.
func RecordRecalculationDuration(seconds float64) {
	globalManager.recalculationDuration.Observe(seconds)
}

// RecordListWeighted counts a list whose weight was recomputed.
func RecordListWeighted() {
	globalManager.listsWeighted.Inc()
}

// RecordListSkipped counts a list excluded from a recalculation.
func RecordListSkipped(reason string) {
	globalManager.listsSkipped.WithLabelValues(reason).Inc()
}

// RecordPenaltySkipped counts a penalty dropped during resolution.
func RecordPenaltySkipped(reason string) {
	globalManager.penaltiesSkipped.WithLabelValues(reason).Inc()
}

// RecordItemsRanked adds n materialized ranked items.
func RecordItemsRanked(n int) {
	globalManager.itemsRanked.Add(float64(n))
}

// RecordTriggerCoalesced counts a trigger folded into a queued run.
func RecordTriggerCoalesced() {
	globalManager.triggersCoalesced.Inc()
}

// UpdatePendingTriggers sets the number of configurations awaiting a run.
func UpdatePendingTriggers(n int64) {
	globalManager.pendingTriggers.Set(float64(n))
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a task waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Storage Metrics Functions.

// RecordRepositoryQueryLatency records store statement latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordRepositoryTx observes a finished store transaction.
func RecordRepositoryTx(backend, status string, seconds float64) {
	globalManager.repositoryTx.WithLabelValues(backend, status).Observe(seconds)
}

// RecordLockAcquire observes an attempt to take a configuration lock.
func RecordLockAcquire(backend, outcome string, seconds float64) {
	globalManager.lockAcquire.WithLabelValues(backend, outcome).Observe(seconds)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
