package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics groups Prometheus collectors for HTTP observability.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers and returns HTTP metrics collectors.
func NewHTTPMetrics(namespace string, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}
	reg.MustRegister(m.ReqTotal, m.ReqDur, m.InFlight)
	return m
}

// DurationMillis converts a duration to milliseconds for metric observation.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

var (
	domainOnce sync.Once

	// QuoteCreatedTotal counts quote creations by initial status.
	QuoteCreatedTotal *prometheus.CounterVec
	// QuoteTransitionTotal counts status transitions by origin and target.
	QuoteTransitionTotal *prometheus.CounterVec
	// QuoteNumberConflictTotal counts quote number allocation collisions that were retried.
	QuoteNumberConflictTotal prometheus.Counter
	// QuoteDeletedTotal counts hard quote deletions.
	QuoteDeletedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers quote lifecycle collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_created_total",
			Help:      "Count of quotes created by initial status.",
		}, []string{"status"})
		QuoteTransitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_status_transitions_total",
			Help:      "Count of quote status transitions.",
		}, []string{"from", "to"})
		QuoteNumberConflictTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_number_conflicts_total",
			Help:      "Count of quote number collisions resolved by retry.",
		})
		QuoteDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_deleted_total",
			Help:      "Count of quotes hard-deleted.",
		})
		reg.MustRegister(QuoteCreatedTotal, QuoteTransitionTotal, QuoteNumberConflictTotal, QuoteDeletedTotal)
	})
}
