// Package metrics holds the Prometheus collectors shared by the
// ingestion pipeline, ledger engine, and live hub.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// IngestTotal counts ingest calls by outcome: accepted_suspicious,
	// accepted_benign, validation_error, unauthorized,
	// classifier_unavailable, ledger_write_failed, internal_error.
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "alertledger", Subsystem: "ingest", Name: "total", Help: "Ingest requests by outcome."},
		[]string{"outcome"},
	)

	// AppendDuration observes wall time of ledger appends, including retries.
	AppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "alertledger", Subsystem: "ledger", Name: "append_duration_seconds", Help: "Ledger append latency in seconds.",
			Buckets: prometheus.DefBuckets},
	)

	// AppendRetries counts transient store faults that triggered a retry.
	AppendRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "alertledger", Subsystem: "ledger", Name: "append_retries_total", Help: "Transient append faults retried."},
	)

	// BroadcastDropped counts live events dropped for lagging subscribers.
	BroadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "alertledger", Subsystem: "live", Name: "dropped_total", Help: "Live events dropped due to slow subscribers."},
	)

	// LiveSubscribers tracks the current hub subscriber count.
	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "alertledger", Subsystem: "live", Name: "subscribers", Help: "Connected live observers."},
	)

	// ClassifierFailures counts scoring collaborator failures.
	ClassifierFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "alertledger", Subsystem: "classifier", Name: "failures_total", Help: "Classifier unavailable errors."},
	)
)

func init() {
	_ = prometheus.Register(IngestTotal)
	_ = prometheus.Register(AppendDuration)
	_ = prometheus.Register(AppendRetries)
	_ = prometheus.Register(BroadcastDropped)
	_ = prometheus.Register(LiveSubscribers)
	_ = prometheus.Register(ClassifierFailures)
}
