package redemption

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instrumentation for the Redemption
// Service, grounded on cryptorun's MetricsRegistry shape (one struct of
// CounterVec/Histogram fields, registered against a private registry
// so a test that builds several Services doesn't panic on duplicate
// registration against the global default registerer).
type Metrics struct {
	registry *prometheus.Registry

	claims          *prometheus.CounterVec
	casConflicts    *prometheus.CounterVec
	confirmDuration prometheus.Histogram
}

// NewMetrics builds a Metrics instance with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redemption_claims_total",
			Help: "Total number of Claim attempts by outcome",
		}, []string{"outcome"}),
		casConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redemption_cas_conflicts_total",
			Help: "Total number of compare-and-swap conflicts by operation",
		}, []string{"operation"}),
		confirmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redemption_confirm_duration_seconds",
			Help:    "Wall-clock duration of the Confirm savings calculation and persistence",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.claims, m.casConflicts, m.confirmDuration)
	return m
}

// Handler exposes the metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
