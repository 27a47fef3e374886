package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sortly/internal/domain"
)

var (
	// Classifications counts classifier results by category and outcome.
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortly_classifications_total",
			Help: "Total number of email classifications",
		},
		[]string{"category", "outcome"},
	)

	ClassificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sortly_classification_duration_seconds",
			Help:    "Latency of the external classification call in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"provider", "outcome"},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sortly_persistence_failures_total",
			Help: "Log store operations that failed and were swallowed",
		},
		[]string{"operation"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sortly_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sortly_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"method", "route", "status"},
	)

	UploadsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sortly_uploads_swept_total",
			Help: "Stale upload files removed by the sweeper",
		},
	)
)

// CategoryLabel bounds the category label to the known categories; anything
// else the model invents is counted as "other".
func CategoryLabel(category string) string {
	switch category {
	case domain.CategoryProductive, domain.CategoryUnproductive, domain.CategoryError, domain.CategoryQuotaExceeded:
		return category
	default:
		return "other"
	}
}

func ObserveClassification(provider, category, outcome string, d time.Duration) {
	Classifications.WithLabelValues(CategoryLabel(category), outcome).Inc()
	ClassificationDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

func ObserveDBQuery(operation string, d time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func ObserveHTTPRequest(method, route, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// Handler serves the default registry for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
