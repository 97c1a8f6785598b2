package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "txproc"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	processRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "requests_total",
			Help:      "Transaction process requests by outcome.",
		},
		[]string{"family", "version", "status"},
	)
	processDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "handler_duration_seconds",
			Help:      "Handler apply duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"family", "version", "status"},
	)
	stateCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "calls_total",
			Help:      "State context calls by operation and result.",
		},
		[]string{"op", "result"},
	)
	stateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "call_duration_seconds",
			Help:      "State context round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "pending",
			Help:      "Outstanding correlated requests.",
		},
	)
	droppedReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "correlation",
			Name:      "dropped_replies_total",
			Help:      "Replies with no pending waiter.",
		},
		[]string{"message_type"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queued",
			Help:      "Execution requests waiting for a worker.",
		},
	)
	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active",
			Help:      "Workers currently applying a transaction.",
		},
	)
	lifecycleState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "state",
			Help:      "1 for the current lifecycle state, 0 otherwise.",
		},
		[]string{"state"},
	)
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "registrations_total",
			Help:      "Registration replies by status.",
		},
		[]string{"family", "version", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			processRequests, processDuration,
			stateCalls, stateDuration,
			pendingRequests, droppedReplies,
			queueDepth, activeWorkers,
			lifecycleState, registrations,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordProcess(family, version, status string, duration time.Duration) {
	RegisterMetrics()
	processRequests.WithLabelValues(family, version, status).Inc()
	processDuration.WithLabelValues(family, version, status).Observe(duration.Seconds())
}

func RecordStateCall(op, result string, duration time.Duration) {
	RegisterMetrics()
	stateCalls.WithLabelValues(op, result).Inc()
	stateDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordDroppedReply(messageType string) {
	RegisterMetrics()
	droppedReplies.WithLabelValues(messageType).Inc()
}

func RecordRegistration(family, version, status string) {
	RegisterMetrics()
	registrations.WithLabelValues(family, version, status).Inc()
}

func AddPending(delta float64) {
	RegisterMetrics()
	pendingRequests.Add(delta)
}

func SetQueueDepth(n int) {
	RegisterMetrics()
	queueDepth.Set(float64(n))
}

func AddActiveWorkers(delta float64) {
	RegisterMetrics()
	activeWorkers.Add(delta)
}

// SetLifecycleState flags current as the only active state among all.
func SetLifecycleState(current string, all []string) {
	RegisterMetrics()
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		lifecycleState.WithLabelValues(s).Set(v)
	}
}
