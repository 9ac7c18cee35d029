// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weather_collector"

var (
	// Cycles counts steady-state collection cycles by outcome.
	Cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Collection cycles by outcome",
		},
		[]string{"result"},
	)

	// BackfillSamples counts historical samples processed during bootstrap.
	BackfillSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_samples_total",
			Help:      "Historical samples processed at startup by outcome",
		},
		[]string{"result"},
	)

	// FetchDuration tracks provider request latency.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of provider HTTP requests",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "result"},
	)

	// PublishAttempts counts individual broker publish attempts.
	PublishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_attempts_total",
			Help:      "Queue publish attempts by backend and outcome",
		},
		[]string{"backend", "result"},
	)

	// QueueReady is 1 once the readiness probe has succeeded.
	QueueReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_ready",
			Help:      "Whether the readiness probe reached the queue",
		},
	)
)

// Result labels a success/failure pair.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
