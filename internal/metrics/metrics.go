package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the attribution engine.
type Metrics struct {
	// API traffic
	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	ThrottleWaits      *prometheus.CounterVec
	ThrottleWaitTime   prometheus.Counter

	// Pagination
	PagesFetched      *prometheus.CounterVec
	PaginationAborted *prometheus.CounterVec

	// Pipeline
	EventsFetched         prometheus.Counter
	PurchasesDeduplicated prometheus.Counter
	ClassifierLookups     *prometheus.CounterVec
	ReportDuration        *prometheus.HistogramVec
	ReportRows            *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics under the given
// namespace using the default registry.
func New(namespace string) *Metrics {
	return &Metrics{
		APIRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		APIRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		ThrottleWaits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "throttle_waits_total",
				Help:      "Number of 429 backoff waits by endpoint",
			},
			[]string{"endpoint"},
		),
		ThrottleWaitTime: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "throttle_wait_seconds_total",
				Help:      "Cumulative seconds spent waiting on rate limits",
			},
		),
		PagesFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Pages retrieved per paginated resource",
			},
			[]string{"resource"},
		),
		PaginationAborted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pagination_aborted_total",
				Help:      "Paginations stopped before exhaustion, by reason",
			},
			[]string{"resource", "reason"},
		),
		EventsFetched: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_fetched_total",
				Help:      "Purchase metric events retrieved",
			},
		),
		PurchasesDeduplicated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchases_total",
				Help:      "Unique purchases after order deduplication",
			},
		),
		ClassifierLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifier_lookups_total",
				Help:      "New-vs-recurring history lookups by result",
			},
			[]string{"result"},
		),
		ReportDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_duration_seconds",
				Help:      "End-to-end report computation time",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"report"},
		),
		ReportRows: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "report_rows",
				Help:      "Rows produced by the last report run",
			},
			[]string{"report"},
		),
	}
}

// Handler returns an HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
