// Package metrics exports publish pipeline counters to Prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "memelibre"

// Publish outcomes.
const (
	OutcomeCommitted       = "committed"
	OutcomeRejected        = "rejected"
	OutcomeStorageFailed   = "storage_unavailable"
	OutcomeOrphaned        = "orphaned"
	OutcomeUnavailable     = "unavailable"
	OrphanReasonCommit     = "commit_failed"
	OrphanReasonDeleteFail = "delete_failed"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	publishTotal      *prometheus.CounterVec
	transcodeDuration *prometheus.HistogramVec
	storedBytes       prometheus.Counter
	orphansTotal      *prometheus.CounterVec
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Publish attempts by terminal outcome.",
		}, []string{"outcome"}),
		transcodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcode_duration_seconds",
			Help:      "Time spent classifying and encoding uploads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		storedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_bytes_total",
			Help:      "Bytes successfully written to object storage.",
		}),
		orphansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_total",
			Help:      "Objects left in the bucket without a referencing record.",
		}, []string{"reason"}),
	}
	for _, c := range []prometheus.Collector{m.publishTotal, m.transcodeDuration, m.storedBytes, m.orphansTotal} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Publish counts one terminal publish outcome.
func (m *Metrics) Publish(outcome string) {
	if m == nil {
		return
	}
	m.publishTotal.WithLabelValues(outcome).Inc()
}

// Transcode records how long encoding a payload of the given format took.
func (m *Metrics) Transcode(format string, d time.Duration) {
	if m == nil {
		return
	}
	m.transcodeDuration.WithLabelValues(format).Observe(d.Seconds())
}

// Stored adds n uploaded bytes.
func (m *Metrics) Stored(n int) {
	if m == nil {
		return
	}
	m.storedBytes.Add(float64(n))
}

// Orphan counts an orphaned object.
func (m *Metrics) Orphan(reason string) {
	if m == nil {
		return
	}
	m.orphansTotal.WithLabelValues(reason).Inc()
}

// PublishCount returns the counter for outcome.
func (m *Metrics) PublishCount(outcome string) prometheus.Counter {
	return m.publishTotal.WithLabelValues(outcome)
}
