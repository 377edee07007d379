package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for ckdreg.
//
// Every recording method is safe to call on a nil *Metrics so packages can
// take an optional instance without guarding each call site.
type Metrics struct {
	// Session lifecycle metrics
	SessionTransitions *prometheus.CounterVec
	IdentityFetches    *prometheus.CounterVec
	SessionExpirations prometheus.Counter

	// GraphQL transport metrics
	GraphQLRequests *prometheus.CounterVec
	GraphQLDuration *prometheus.HistogramVec
	GraphQLCache    *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ckdreg_session_transitions_total",
				Help: "Total number of session state transitions",
			},
			[]string{"from", "to"},
		),
		IdentityFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ckdreg_identity_fetches_total",
				Help: "Total number of identity fetches by classified outcome",
			},
			[]string{"outcome"},
		),
		SessionExpirations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ckdreg_session_expirations_total",
				Help: "Total number of sessions ended by an expired credential",
			},
		),

		GraphQLRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ckdreg_graphql_requests_total",
				Help: "Total number of GraphQL requests sent to the registry",
			},
			[]string{"operation", "status"},
		),
		GraphQLDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ckdreg_graphql_request_duration_seconds",
				Help:    "GraphQL request duration in seconds, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),
		GraphQLCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ckdreg_graphql_cache_total",
				Help: "GraphQL response cache lookups",
			},
			[]string{"result"},
		),
	}
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordIdentityFetch records the classified outcome of an identity fetch.
func (m *Metrics) RecordIdentityFetch(outcome string) {
	if m == nil {
		return
	}
	m.IdentityFetches.WithLabelValues(outcome).Inc()
}

// RecordExpiration records a session ended by an expired credential.
func (m *Metrics) RecordExpiration() {
	if m == nil {
		return
	}
	m.SessionExpirations.Inc()
}

// RecordRequest records a GraphQL request and its duration.
func (m *Metrics) RecordRequest(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GraphQLRequests.WithLabelValues(operation, status).Inc()
	m.GraphQLDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCache records a response cache hit or miss.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.GraphQLCache.WithLabelValues(result).Inc()
}
