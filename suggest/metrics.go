package suggest

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the suggestion lifecycle.
type Metrics struct {
	TicketsTotal        *prometheus.CounterVec
	StaleChunksTotal    prometheus.Counter
	SuggestionsShown    prometheus.Counter
	AcceptsTotal        *prometheus.CounterVec
	InvalidationsTotal  *prometheus.CounterVec
	ProviderErrorsTotal *prometheus.CounterVec
	TimeToFirstChunk    prometheus.Histogram
	ActiveViews         prometheus.Gauge
}

// NewMetrics registers the suggestion metrics once per process and returns
// the shared instance.
//
// Metrics:
//   - inkling_tickets_total{trigger} - fetches scheduled
//   - inkling_stale_chunks_total - chunks dropped for a superseded ticket
//   - inkling_suggestions_shown_total - sessions populated
//   - inkling_accepts_total{strategy} - accepted segments
//   - inkling_invalidations_total{reason} - sessions dropped by the reconciler
//   - inkling_provider_errors_total{provider} - failed generations
//   - inkling_time_to_first_chunk_seconds - request start to first chunk
//   - inkling_active_views - open views
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TicketsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inkling_tickets_total",
					Help: "Total number of fetch tickets issued",
				},
				[]string{"trigger"}, // "auto" or "manual"
			),
			StaleChunksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "inkling_stale_chunks_total",
					Help: "Total number of chunks dropped because a newer ticket was issued",
				},
			),
			SuggestionsShown: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "inkling_suggestions_shown_total",
					Help: "Total number of suggestions shown",
				},
			),
			AcceptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inkling_accepts_total",
					Help: "Total number of accepted segments",
				},
				[]string{"strategy"},
			),
			InvalidationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inkling_invalidations_total",
					Help: "Total number of suggestions invalidated by edits",
				},
				[]string{"reason"},
			),
			ProviderErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "inkling_provider_errors_total",
					Help: "Total number of failed generations",
				},
				[]string{"provider"},
			),
			TimeToFirstChunk: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "inkling_time_to_first_chunk_seconds",
					Help:    "Time from generation start to the first chunk",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
				},
			),
			ActiveViews: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "inkling_active_views",
					Help: "Current number of open views",
				},
			),
		}
	})
	return globalMetrics
}
