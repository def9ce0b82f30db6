package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Row cache metrics
	RowCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabcore_row_cache_size",
			Help: "Current number of row sessions held in the row cache",
		},
	)

	RowCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_row_cache_hits_total",
			Help: "Total number of row cache lookups served from cache",
		},
	)

	RowCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_row_cache_misses_total",
			Help: "Total number of row cache lookups that fell through to a fetch task",
		},
	)

	RowCacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_row_cache_evictions_total",
			Help: "Total number of row sessions evicted from the row cache",
		},
	)

	// Task controller metrics
	FetchTasksQueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_fetch_tasks_queued_total",
			Help: "Total number of fetch tasks enqueued",
		},
	)

	FetchTasksDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_fetch_tasks_deduped_total",
			Help: "Total number of fetch requests coalesced onto an in-flight task",
		},
	)

	FetchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collabcore_fetch_queue_depth",
			Help: "Current number of fetch tasks waiting or in flight",
		},
	)

	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collabcore_fetch_duration_seconds",
			Help:    "Time taken to complete a remote fetch task",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Outbound sink metrics
	SinkStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collabcore_sink_state",
			Help: "Current sink state (1 = active) by state name",
		},
		[]string{"state"},
	)

	SinkMessagesQueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_sink_messages_queued_total",
			Help: "Total number of outbound messages queued",
		},
	)

	SinkMessagesMergedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_sink_messages_merged_total",
			Help: "Total number of outbound messages merged into an in-flight message",
		},
	)

	SinkMessagesAckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_sink_messages_acked_total",
			Help: "Total number of outbound messages acknowledged by the remote",
		},
	)

	SinkTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_sink_timeouts_total",
			Help: "Total number of outbound messages that timed out waiting for an ack",
		},
	)

	// Update log metrics
	UpdateLogAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collabcore_update_log_append_duration_seconds",
			Help:    "Time taken to append a CRDT update to the update log",
			Buckets: prometheus.DefBuckets,
		},
	)

	UpdateLogAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_update_log_appends_total",
			Help: "Total number of updates appended across all objects",
		},
	)

	UpdateLogSnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_update_log_snapshots_total",
			Help: "Total number of snapshot compactions performed",
		},
	)

	// CRDT session metrics
	SessionWriteContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collabcore_session_write_contention_total",
			Help: "Total number of write transactions that had to retry due to contention",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RowCacheSize,
		RowCacheHitsTotal,
		RowCacheMissesTotal,
		RowCacheEvictionsTotal,
		FetchTasksQueuedTotal,
		FetchTasksDedupedTotal,
		FetchQueueDepth,
		FetchDuration,
		SinkStateGauge,
		SinkMessagesQueuedTotal,
		SinkMessagesMergedTotal,
		SinkMessagesAckedTotal,
		SinkTimeoutsTotal,
		UpdateLogAppendDuration,
		UpdateLogAppendsTotal,
		UpdateLogSnapshotsTotal,
		SessionWriteContentionTotal,
	)
}

// Handler returns the Prometheus HTTP handler for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
