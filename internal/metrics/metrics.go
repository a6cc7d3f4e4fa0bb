package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoices"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	mutationsSubmitted *prometheus.CounterVec
	mutationsSettled   *prometheus.CounterVec
	mutationsInFlight  prometheus.Gauge
	journalEntries     *prometheus.CounterVec
	confirmations      *prometheus.CounterVec
	searcherSessions   prometheus.Gauge
	outboxDispatch     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		mutationsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_submitted_total",
			Help:      "Mutations submitted by searcher sessions.",
		}, []string{"kind"}),
		mutationsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_settled_total",
			Help:      "Mutations settled, by outcome.",
		}, []string{"kind", "status"}),
		mutationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mutations_in_flight",
			Help:      "Mutations submitted and not yet settled.",
		}),
		journalEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_entries_total",
			Help:      "Mutation results written to the journal.",
		}, []string{"status"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Confirmation dialog answers.",
		}, []string{"answer"}),
		searcherSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "searcher_sessions",
			Help:      "Mounted searcher sessions.",
		}),
		outboxDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_dispatch_total",
			Help:      "Outbox dispatch attempts, by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mutationsSubmitted,
		m.mutationsSettled,
		m.mutationsInFlight,
		m.journalEntries,
		m.confirmations,
		m.searcherSessions,
		m.outboxDispatch,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MutationSubmitted(kind string) {
	if m == nil {
		return
	}
	m.mutationsSubmitted.WithLabelValues(kind).Inc()
	m.mutationsInFlight.Inc()
}

func (m *Metrics) MutationSettled(kind, status string) {
	if m == nil {
		return
	}
	m.mutationsSettled.WithLabelValues(kind, status).Inc()
	m.mutationsInFlight.Dec()
}

func (m *Metrics) JournalEntry(status string) {
	if m == nil {
		return
	}
	m.journalEntries.WithLabelValues(status).Inc()
}

func (m *Metrics) ConfirmationAnswered(answer string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(answer).Inc()
}

func (m *Metrics) SessionMounted() {
	if m == nil {
		return
	}
	m.searcherSessions.Inc()
}

func (m *Metrics) SessionUnmounted() {
	if m == nil {
		return
	}
	m.searcherSessions.Dec()
}

func (m *Metrics) OutboxDispatched(result string) {
	if m == nil {
		return
	}
	m.outboxDispatch.WithLabelValues(result).Inc()
}
