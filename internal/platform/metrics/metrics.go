package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	ActivitiesCommitted *prometheus.CounterVec
	MutationsRejected   *prometheus.CounterVec
	CheckinFraud        prometheus.Counter
	StreamPublishErrors prometheus.Counter
	CommitDuration      prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ActivitiesCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldops_activities_committed_total",
			Help: "Committed activity mutations by action.",
		}, []string{"action"}),
		MutationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldops_mutations_rejected_total",
			Help: "Rejected activity mutations by error code.",
		}, []string{"code"}),
		CheckinFraud: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldops_checkin_fraud_total",
			Help: "Check-ins rejected by the anti-fraud heuristic.",
		}),
		StreamPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fieldops_stream_publish_errors_total",
			Help: "Addendum fan-out publishes that failed after commit.",
		}),
		CommitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldops_commit_duration_seconds",
			Help:    "Latency of the atomic multi-document commit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveCommit records one commit latency sample.
func (m *Metrics) ObserveCommit(d time.Duration) {
	m.CommitDuration.Observe(d.Seconds())
}
