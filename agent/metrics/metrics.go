// Package metrics holds the Prometheus collectors of the monitoring pipeline.
// They are registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_tracker_samples_total",
		Help: "Successful foreground samples.",
	})

	PlatformFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_tracker_platform_failures_total",
		Help: "Platform queries that failed and skipped a tick, partitioned by reason.",
	}, []string{"reason"})

	SessionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_tracker_sessions_closed_total",
		Help: "Sessions closed by the session builder, partitioned by idle state.",
	}, []string{"idle"})

	SleepGapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_tracker_sleep_gaps_total",
		Help: "Sample gaps longer than the sleep-gap threshold.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "activity_tracker_write_queue_depth",
		Help: "Writes waiting for the persistence worker.",
	})

	WritesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_tracker_writes_dropped_total",
		Help: "Pending writes dropped, partitioned by kind and reason.",
	}, []string{"kind", "reason"})

	WriteRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_tracker_write_retries_total",
		Help: "Persistence write retries, partitioned by kind.",
	}, []string{"kind"})

	WriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "activity_tracker_write_duration_seconds",
		Help:    "Latency of persistence writes.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"kind"})

	CorruptRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_tracker_corrupt_records_total",
		Help: "Persisted rows skipped because they could not be decoded.",
	})
)

// IdleLabel renders a bool for the idle label.
func IdleLabel(idle bool) string {
	if idle {
		return "true"
	}
	return "false"
}
