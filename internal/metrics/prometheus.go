package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/formload/internal/transaction"
)

// PrometheusSink exports transactions as Prometheus series on its own registry.
type PrometheusSink struct {
	registry *prometheus.Registry

	transactions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	iterations   *prometheus.CounterVec
}

// NewPrometheusSink registers the formload collectors on a fresh registry.
func NewPrometheusSink() *PrometheusSink {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PrometheusSink{
		registry: reg,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formload",
			Name:      "transactions_total",
			Help:      "Timed transactions by name and outcome.",
		}, []string{"transaction", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "formload",
			Name:      "transaction_duration_seconds",
			Help:      "Transaction latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"transaction"}),
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formload",
			Name:      "scenario_iterations_total",
			Help:      "Scenario runs by scenario and outcome.",
		}, []string{"scenario", "outcome"}),
	}
}

// Record implements transaction.Sink.
func (p *PrometheusSink) Record(m transaction.Measurement) {
	p.transactions.WithLabelValues(m.Name, string(m.Outcome)).Inc()
	p.latency.WithLabelValues(m.Name).Observe(m.Duration.Seconds())
}

// RecordIteration counts one scenario run.
func (p *PrometheusSink) RecordIteration(scenario string, outcome transaction.Outcome) {
	p.iterations.WithLabelValues(scenario, string(outcome)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PrometheusSink) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ transaction.Sink = (*PrometheusSink)(nil)
