// Package metrics holds the Prometheus collectors of the sync server.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	syncBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famsync",
		Name:      "sync_batches_total",
		Help:      "Sync batches by HTTP status.",
	}, []string{"status"})

	syncBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "famsync",
		Name:      "sync_batch_seconds",
		Help:      "Time spent applying one sync batch, transaction included.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	mutationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famsync",
		Name:      "mutations_total",
		Help:      "Applied mutations by entity type and outcome.",
	}, []string{"entity_type", "outcome"})

	conflictsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famsync",
		Name:      "conflicts_resolved_total",
		Help:      "Resolved conflicts by strategy.",
	}, []string{"strategy"})

	changesPulled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "famsync",
		Name:      "changes_pulled_total",
		Help:      "Entities returned to devices as delta changes.",
	})

	nudgeSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "famsync",
		Name:      "nudge_subscribers",
		Help:      "Open nudge websocket connections.",
	})

	nudgesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "famsync",
		Name:      "nudges_delivered_total",
		Help:      "Nudges written to device connections.",
	})

	purgedRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "famsync",
		Name:      "purged_rows_total",
		Help:      "Rows removed by retention jobs.",
	}, []string{"kind"})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "famsync",
		Name:      "rate_limited_total",
		Help:      "Requests refused with 429.",
	})

	once sync.Once
)

func init() {
	once.Do(func() {
		prometheus.MustRegister(
			syncBatches,
			syncBatchDuration,
			mutationOutcomes,
			conflictsResolved,
			changesPulled,
			nudgeSubscribers,
			nudgesDelivered,
			purgedRows,
			rateLimited,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBatch records a finished sync request.
func ObserveBatch(status int, elapsed time.Duration) {
	syncBatches.WithLabelValues(http.StatusText(status)).Inc()
	syncBatchDuration.Observe(elapsed.Seconds())
}

// ObserveMutation counts one mutation outcome.
func ObserveMutation(entityType, outcome string) {
	mutationOutcomes.WithLabelValues(entityType, outcome).Inc()
}

// ObserveConflict counts one resolved conflict.
func ObserveConflict(strategy string) {
	conflictsResolved.WithLabelValues(strategy).Inc()
}

// ObservePulled counts entities sent back as changes.
func ObservePulled(n int) {
	changesPulled.Add(float64(n))
}

// SetNudgeSubscribers sets the number of open nudge connections.
func SetNudgeSubscribers(n int) {
	nudgeSubscribers.Set(float64(n))
}

// ObserveNudges counts delivered nudges.
func ObserveNudges(n int) {
	nudgesDelivered.Add(float64(n))
}

// ObservePurged counts rows removed by a retention job.
func ObservePurged(kind string, n int) {
	purgedRows.WithLabelValues(kind).Add(float64(n))
}

// ObserveRateLimited counts a request refused by the rate limiter
func ObserveRateLimited() {
	rateLimited.Inc()
}
