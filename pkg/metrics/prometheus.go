// Package metrics provides Prometheus metrics for the cadence animation
// control service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultIdleHoldBuckets cover the configured idle hold range in seconds.
var defaultIdleHoldBuckets = []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 3, 5} //nolint:gochecknoglobals // read-only defaults

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	idleHoldBuckets  []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Picker
	picks         *prometheus.CounterVec
	deadlockBumps prometheus.Counter
	currentLuck   *prometheus.GaugeVec
	emptyPicks    prometheus.Counter

	// Scheduler
	schedulerEnabled    prometheus.Gauge
	transitions         *prometheus.CounterVec
	idleHoldsStarted    prometheus.Counter
	idleHoldsResolved   prometheus.Counter
	idleHoldsCancelled  prometheus.Counter
	idleHoldDuration    prometheus.Histogram
	audioGatedSkips     prometheus.Counter
	configInconsistency *prometheus.CounterVec
	finishedDuplicates  prometheus.Counter

	// Frame loop
	framesPublished prometheus.Counter
	tickLatency     prometheus.Histogram
	cueMisses       prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Avatar loop
	eventsHandled *prometheus.CounterVec
	handleLatency prometheus.Histogram

	// Transport
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsClients           prometheus.Gauge
	wsMessages          *prometheus.CounterVec

	// Storage
	storeOps *prometheus.CounterVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cadence",
		subsystem:        "animator",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		idleHoldBuckets:  defaultIdleHoldBuckets,
		customLabels:     make(map[string]string),
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.picks = m.counterVec("picks_total", "Clips chosen by the luck picker", "key")
	m.deadlockBumps = m.counter("luck_deadlock_bumps_total", "Picks that needed the anti-deadlock luck bump")
	m.emptyPicks = m.counter("empty_picks_total", "Picks that found no candidate")
	m.currentLuck = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "current_luck",
		Help:        "Current luck per pool item",
		ConstLabels: m.customLabels,
	}, []string{"key"})

	m.schedulerEnabled = m.gauge("scheduler_enabled", "1 when the clip scheduler reacts to finished clips")
	m.transitions = m.counterVec("scheduler_transitions_total", "Scheduler transitions by kind", "kind")
	m.idleHoldsStarted = m.counter("idle_holds_started_total", "Idle holds scheduled")
	m.idleHoldsResolved = m.counter("idle_holds_resolved_total", "Idle holds that fired and picked a clip")
	m.idleHoldsCancelled = m.counter("idle_holds_cancelled_total", "Idle holds cancelled before firing")
	m.idleHoldDuration = m.histogram("idle_hold_duration_seconds", "Sampled idle hold durations", m.idleHoldBuckets)
	m.audioGatedSkips = m.counter("audio_gated_skips_total", "Picks skipped because audio was paused or ended")
	m.configInconsistency = m.counterVec("config_inconsistencies_total", "Configuration inconsistencies by kind", "kind")
	m.finishedDuplicates = m.counter("finished_duplicates_total", "Duplicate clip-finished reports dropped")

	m.framesPublished = m.counter("frames_published_total", "Blend weight frames handed to sinks")
	m.tickLatency = m.histogram("tick_latency_milliseconds", "Time spent computing one frame", m.histogramBuckets)
	m.cueMisses = m.counter("cue_misses_total", "Ticks that fell outside every cue and used the default category")

	m.queueSize = m.gauge("queue_size", "Events waiting for the avatar loop")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the avatar event queue")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Events accepted by the queue")
	m.queueDequeued = m.counter("queue_dequeued_total", "Events handed to the avatar loop")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected enqueues by reason", "reason")

	m.eventsHandled = m.counterVec("events_handled_total", "Events handled by the avatar loop by kind and result", "kind", "result")
	m.handleLatency = m.histogram("event_handle_latency_milliseconds", "Time spent handling one event", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.wsClients = m.gauge("ws_clients", "Connected rendering hosts")
	m.wsMessages = m.counterVec("ws_messages_total", "Websocket messages by direction and type", "direction", "type")

	m.storeOps = m.counterVec("luck_store_operations_total", "Luck store operations by op and result", "op", "result")

	m.memoryUsage = m.gauge("memory_usage_bytes", "Heap bytes allocated")
	m.goroutineCount = m.gauge("goroutines", "Number of goroutines")
	m.gcPauseTime = m.histogram("gc_pause_milliseconds", "Average GC pause", m.histogramBuckets)
}

// RecordPick counts a picked key.
func RecordPick(key string) {
	if globalManager.enabled {
		globalManager.picks.WithLabelValues(key).Inc()
	}
}

// RecordDeadlockBump counts an anti-deadlock luck bump.
func RecordDeadlockBump() {
	if globalManager.enabled {
		globalManager.deadlockBumps.Inc()
	}
}

// RecordEmptyPick counts a pick with no candidates.
func RecordEmptyPick() {
	if globalManager.enabled {
		globalManager.emptyPicks.Inc()
	}
}

// UpdateLuck publishes the luck vector.
func UpdateLuck(state map[string]float64) {
	if !globalManager.enabled {
		return
	}
	for k, v := range state {
		globalManager.currentLuck.WithLabelValues(k).Set(v)
	}
}

// UpdateSchedulerEnabled sets the scheduler enabled gauge.
func UpdateSchedulerEnabled(enabled bool) {
	if !globalManager.enabled {
		return
	}
	if enabled {
		globalManager.schedulerEnabled.Set(1)
		return
	}
	globalManager.schedulerEnabled.Set(0)
}

// RecordTransition counts a scheduler transition by kind.
func RecordTransition(kind string) {
	if globalManager.enabled {
		globalManager.transitions.WithLabelValues(kind).Inc()
	}
}

// RecordIdleHoldStarted counts a scheduled idle hold and its sampled duration.
func RecordIdleHoldStarted(d time.Duration) {
	if globalManager.enabled {
		globalManager.idleHoldsStarted.Inc()
		globalManager.idleHoldDuration.Observe(d.Seconds())
	}
}

// RecordIdleHoldResolved counts an idle hold that fired.
func RecordIdleHoldResolved() {
	if globalManager.enabled {
		globalManager.idleHoldsResolved.Inc()
	}
}

// RecordIdleHoldCancelled counts an idle hold cancelled before firing.
func RecordIdleHoldCancelled() {
	if globalManager.enabled {
		globalManager.idleHoldsCancelled.Inc()
	}
}

// RecordAudioGatedSkip counts a pick skipped by the audio clock gate.
func RecordAudioGatedSkip() {
	if globalManager.enabled {
		globalManager.audioGatedSkips.Inc()
	}
}

// RecordConfigInconsistency counts a configuration inconsistency by kind.
func RecordConfigInconsistency(kind string) {
	if globalManager.enabled {
		globalManager.configInconsistency.WithLabelValues(kind).Inc()
	}
}

// RecordFinishedDuplicate counts a dropped duplicate finished report.
func RecordFinishedDuplicate() {
	if globalManager.enabled {
		globalManager.finishedDuplicates.Inc()
	}
}

// RecordFramePublished counts a frame and the time spent computing it.
func RecordFramePublished(latencyMs float64) {
	if globalManager.enabled {
		globalManager.framesPublished.Inc()
		globalManager.tickLatency.Observe(latencyMs)
	}
}

// RecordCueMiss counts a tick resolved to the default category.
func RecordCueMiss() {
	if globalManager.enabled {
		globalManager.cueMisses.Inc()
	}
}

// UpdateQueueSize sets the queue size gauge.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue counts an accepted enqueue.
func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
	}
}

// RecordEventHandled counts an event handled by the avatar loop.
func RecordEventHandled(kind string, latencyMs float64, err error) {
	if !globalManager.enabled {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	globalManager.eventsHandled.WithLabelValues(kind, result).Inc()
	globalManager.handleLatency.Observe(latencyMs)
}

// RecordHTTPRequest counts an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// UpdateWSClients sets the connected host gauge.
func UpdateWSClients(count int) {
	if globalManager.enabled {
		globalManager.wsClients.Set(float64(count))
	}
}

// RecordWSMessage counts a websocket message. direction is "in" or "out".
func RecordWSMessage(direction, msgType string) {
	if globalManager.enabled {
		globalManager.wsMessages.WithLabelValues(direction, msgType).Inc()
	}
}

// RecordStoreOp counts a luck store operation.
func RecordStoreOp(op string, err error) {
	if !globalManager.enabled {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	globalManager.storeOps.WithLabelValues(op, result).Inc()
}

// UpdateSystemMemoryUsage sets the heap gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.memoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.goroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(ms float64) {
	if globalManager.enabled {
		globalManager.gcPauseTime.Observe(ms)
	}
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
