// Package metrics provides Prometheus metrics for the siege coordinator.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Event progression
	kills                 *prometheus.CounterVec
	objectiveCrossings    *prometheus.CounterVec
	phaseTransitions      *prometheus.CounterVec
	finalizations         *prometheus.CounterVec
	activeSieges          prometheus.Gauge
	siegeDuration         prometheus.Histogram
	questItemTransitions  *prometheus.CounterVec
	deliveryRejections    *prometheus.CounterVec
	countdownFailures     prometheus.Counter
	terrainChanges        *prometheus.CounterVec
	notificationsRejected *prometheus.CounterVec

	// Broadcast fan-out
	broadcastMessages *prometheus.CounterVec
	broadcastFailures *prometheus.CounterVec
	broadcastLatency  prometheus.Histogram

	// Ranking sinks
	rankingSinkLatency *prometheus.HistogramVec
	rankingSinkErrors  *prometheus.CounterVec
	leaderboardEntries prometheus.Gauge

	// Notification queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	notificationsDuplicate prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "siege",
		subsystem:        "coordinator",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.kills = m.counterVec("kills_total", "Kills credited, by resolved source kind", "kind")
	m.objectiveCrossings = m.counterVec("objective_crossings_total", "Objective thresholds reached, by phase", "phase")
	m.phaseTransitions = m.counterVec("phase_transitions_total", "Phase transitions, by target phase", "phase")
	m.finalizations = m.counterVec("finalizations_total", "Finalized sieges, by outcome", "outcome")
	m.activeSieges = m.gauge("active_sieges", "Sieges currently running")
	m.siegeDuration = m.histogram("siege_duration_seconds", "Wall-clock duration of finalized sieges",
		[]float64{30, 60, 120, 300, 600, 900, 1200, 1800})
	m.questItemTransitions = m.counterVec("quest_item_transitions_total", "Quest item custody transitions", "transition")
	m.deliveryRejections = m.counterVec("delivery_rejections_total", "Rejected delivery attempts, by reason", "reason")
	m.countdownFailures = m.counter("countdown_failures_total", "Countdown loops that terminated on an unexpected failure")
	m.terrainChanges = m.counterVec("terrain_changes_total", "Terrain passability changes, by region set", "region", "passable")
	m.notificationsRejected = m.counterVec("notifications_rejected_total", "Notifications rejected by the state machine", "reason")

	m.broadcastMessages = m.counterVec("broadcast_messages_total", "Messages handed to the messenger, by kind", "kind")
	m.broadcastFailures = m.counterVec("broadcast_failures_total", "Messages the messenger failed to deliver, by kind", "kind")
	m.broadcastLatency = m.histogram("broadcast_latency_milliseconds", "Per-recipient send latency in milliseconds", m.histogramBuckets)

	m.rankingSinkLatency = m.histogramVec("ranking_sink_latency_milliseconds", "Ranking sink write latency in milliseconds", "sink")
	m.rankingSinkErrors = m.counterVec("ranking_sink_errors_total", "Ranking sink write failures", "sink")
	m.leaderboardEntries = m.gauge("leaderboard_entries", "Participants tracked by the in-memory leaderboard")

	m.queueSize = m.gauge("queue_size", "Current size of the notification queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum notification queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Notifications enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Notifications dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Notifications refused by the queue")
	m.notificationsDuplicate = m.counter("notifications_duplicate_total", "Notifications dropped as duplicates")

	m.workerCount = m.gauge("worker_count", "Notification workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time to apply one notification in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Notifications that failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", m.histogramBuckets)
}

func enabled() bool { return globalManager != nil && globalManager.enabled }

// Event progression.

func RecordKill(kind string) {
	if enabled() {
		globalManager.kills.WithLabelValues(kind).Inc()
	}
}

func RecordObjectiveCrossing(phase string) {
	if enabled() {
		globalManager.objectiveCrossings.WithLabelValues(phase).Inc()
	}
}

func RecordPhaseTransition(phase string) {
	if enabled() {
		globalManager.phaseTransitions.WithLabelValues(phase).Inc()
	}
}

func RecordFinalization(outcome string) {
	if enabled() {
		globalManager.finalizations.WithLabelValues(outcome).Inc()
	}
}

func IncActiveSieges() {
	if enabled() {
		globalManager.activeSieges.Inc()
	}
}

func DecActiveSieges() {
	if enabled() {
		globalManager.activeSieges.Dec()
	}
}

func RecordSiegeDuration(d time.Duration) {
	if enabled() {
		globalManager.siegeDuration.Observe(d.Seconds())
	}
}

func RecordQuestItemTransition(transition string) {
	if enabled() {
		globalManager.questItemTransitions.WithLabelValues(transition).Inc()
	}
}

func RecordDeliveryRejection(reason string) {
	if enabled() {
		globalManager.deliveryRejections.WithLabelValues(reason).Inc()
	}
}

func RecordCountdownFailure() {
	if enabled() {
		globalManager.countdownFailures.Inc()
	}
}

func RecordTerrainChange(region string, passable bool) {
	if enabled() {
		globalManager.terrainChanges.WithLabelValues(region, strconv.FormatBool(passable)).Inc()
	}
}

func RecordNotificationRejected(reason string) {
	if enabled() {
		globalManager.notificationsRejected.WithLabelValues(reason).Inc()
	}
}

// Broadcast fan-out.

func RecordBroadcast(kind string) {
	if enabled() {
		globalManager.broadcastMessages.WithLabelValues(kind).Inc()
	}
}

func RecordBroadcastFailure(kind string) {
	if enabled() {
		globalManager.broadcastFailures.WithLabelValues(kind).Inc()
	}
}

func RecordBroadcastLatency(latencyMs float64) {
	if enabled() {
		globalManager.broadcastLatency.Observe(latencyMs)
	}
}

// Ranking sinks.

func RecordRankingSinkLatency(sink string, latencyMs float64) {
	if enabled() {
		globalManager.rankingSinkLatency.WithLabelValues(sink).Observe(latencyMs)
	}
}

func RecordRankingSinkError(sink string) {
	if enabled() {
		globalManager.rankingSinkErrors.WithLabelValues(sink).Inc()
	}
}

func UpdateLeaderboardEntries(n int) {
	if enabled() {
		globalManager.leaderboardEntries.Set(float64(n))
	}
}

// Notification queue.

func UpdateQueueSize(size int) {
	if enabled() {
		globalManager.queueSize.Set(float64(size))
	}
}

func UpdateQueueCapacity(capacity int) {
	if enabled() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

func RecordQueueEnqueue() {
	if enabled() {
		globalManager.queueEnqueued.Inc()
	}
}

func RecordQueueDequeue() {
	if enabled() {
		globalManager.queueDequeued.Inc()
	}
}

func RecordQueueEnqueueError() {
	if enabled() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

func RecordNotificationDuplicate() {
	if enabled() {
		globalManager.notificationsDuplicate.Inc()
	}
}

// Workers.

func UpdateWorkerCount(count int) {
	if enabled() {
		globalManager.workerCount.Set(float64(count))
	}
}

func RecordWorkerProcessingLatency(latencyMs float64) {
	if enabled() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

func RecordWorkerError() {
	if enabled() {
		globalManager.workerErrors.Inc()
	}
}

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	if enabled() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if enabled() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// Errors.

func RecordErrorByComponent(component, errorType string) {
	if enabled() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// System.

func UpdateSystemMemoryUsage(bytes uint64) {
	if enabled() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

func UpdateSystemGoroutineCount(count int) {
	if enabled() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

func RecordSystemGCPauseTime(pauseMs float64) {
	if enabled() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// RefreshInterval returns how often process gauges should be sampled.
func RefreshInterval() time.Duration {
	if globalManager == nil {
		return defaultRefreshInterval
	}
	return globalManager.refreshInterval
}

// GetRegistry returns the registry every collector is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
