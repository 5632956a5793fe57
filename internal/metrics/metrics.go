package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the worker's instrumentation. One instance per process,
// registered on its own registry so tests can construct isolated copies.
type Metrics struct {
	registry *prometheus.Registry

	EventsConsumed prometheus.Counter
	EventsFailed   prometheus.Counter
	RulesMatched   prometheus.Counter
	ActionResults  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "automation",
			Name:      "events_consumed_total",
			Help:      "Events delivered to the consumer loop.",
		}),
		EventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "automation",
			Name:      "events_failed_total",
			Help:      "Events whose processing returned an error.",
		}),
		RulesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "automation",
			Name:      "rules_matched_total",
			Help:      "Rules whose conditions matched an event.",
		}),
		ActionResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automation",
			Name:      "action_results_total",
			Help:      "Action outcomes by kind.",
		}, []string{"kind", "outcome"}),
	}
	reg.MustRegister(
		m.EventsConsumed, m.EventsFailed, m.RulesMatched, m.ActionResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveAction records one action outcome.
func (m *Metrics) ObserveAction(kind string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ActionResults.WithLabelValues(kind, outcome).Inc()
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
