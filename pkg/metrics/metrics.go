package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommitFailures counts failed backend Flush/commit attempts.
	CommitFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grr_commit_failure",
			Help: "Total number of failed datastore commit/flush attempts",
		},
	)

	// TaskTTLExpiredCount counts tasks dropped from a queue because their
	// lease TTL reached zero before completion.
	TaskTTLExpiredCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grr_task_ttl_expired_count",
			Help: "Total number of queued tasks removed after their TTL was exhausted",
		},
	)

	// TaskRetransmissionCount counts tasks re-leased after a prior lease was
	// not acknowledged in time.
	TaskRetransmissionCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grr_task_retransmission_count",
			Help: "Total number of tasks re-leased after a previous lease expired unacknowledged",
		},
	)

	// DatastoreRetries counts retried operations against the backend (lock
	// acquisition retries, suffix-collision retries).
	DatastoreRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datastore_retries",
			Help: "Total number of retried datastore operations",
		},
	)

	// DatastoreSize is periodically set to the backend's reported size in
	// bytes by the size-monitor loop.
	DatastoreSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "datastore_size",
			Help: "Total size of the datastore backend in bytes, as last reported by Size()",
		},
	)
)

func init() {
	prometheus.MustRegister(CommitFailures)
	prometheus.MustRegister(TaskTTLExpiredCount)
	prometheus.MustRegister(TaskRetransmissionCount)
	prometheus.MustRegister(DatastoreRetries)
	prometheus.MustRegister(DatastoreSize)
}

// Handler returns the Prometheus scrape HTTP handler.
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
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
