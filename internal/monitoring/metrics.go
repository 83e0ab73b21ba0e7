// Package monitoring exposes Prometheus metrics for the poll loop and sends
// alert webhooks when onboarding tracks fail.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "onboard_polls_total",
		Help: "Total number of poll ticks across all sessions",
	})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "onboard_poll_duration_seconds",
		Help:    "Duration of one fetch and reconcile tick",
		Buckets: prometheus.DefBuckets,
	})

	fetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_fetch_errors_total",
			Help: "Failed status or count sub-queries",
		},
		[]string{"query"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_dispatch_total",
			Help: "Stage-start calls by result",
		},
		[]string{"workflow", "result"},
	)

	trackFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_track_failures_total",
			Help: "Transitions of a track into a failed state",
		},
		[]string{"workflow", "kind"},
	)

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "onboard_sessions_active",
		Help: "Mounted onboarding sessions",
	})

	tracksByBadge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onboard_tracks",
			Help: "Tracks across mounted sessions by badge",
		},
		[]string{"workflow", "badge"},
	)
)

// RecordPoll records one completed tick.
func RecordPoll(d time.Duration) {
	pollsTotal.Inc()
	pollDuration.Observe(d.Seconds())
}

// RecordFetchError counts a failed sub-query. query is bounded, e.g.
// "status:scrape" or "count:emails_received".
func RecordFetchError(query string) {
	fetchErrorsTotal.WithLabelValues(query).Inc()
}

// RecordDispatch counts a stage-start call outcome: "ok", "error" or "skipped".
func RecordDispatch(workflow, result string) {
	dispatchTotal.WithLabelValues(workflow, result).Inc()
}

// RecordTrackFailure counts a track entering a failed state.
func RecordTrackFailure(workflow, kind string) {
	trackFailuresTotal.WithLabelValues(workflow, kind).Inc()
}

// SetSessionsActive sets the mounted session gauge.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
