// Package metrics exposes the service counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests can build as many as they like.
// It satisfies the observer interfaces of the reconciler, the anticipation
// engine and the fee calculator.
type Metrics struct {
	registry       *prometheus.Registry
	reconciled     *prometheus.CounterVec
	notifications  prometheus.Counter
	anticipations  *prometheus.CounterVec
	feeCacheLookup *prometheus.CounterVec
	reports        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "reconciliations_total",
			Help:      "Status reconciliations by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "payment_notifications_total",
			Help:      "Payment approved notifications sent.",
		}),
		anticipations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "anticipation_requests_total",
			Help:      "Anticipation requests by outcome.",
		}, []string{"outcome"}),
		feeCacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "fee_cache_lookups_total",
			Help:      "Fee definition cache lookups by result.",
		}, []string{"result"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "status_report_rows_total",
			Help:      "Status report rows ingested by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.reconciled, m.notifications, m.anticipations, m.feeCacheLookup, m.reports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Reconciled(outcome string) {
	m.reconciled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationSent() {
	m.notifications.Inc()
}

func (m *Metrics) Anticipated(outcome string) {
	m.anticipations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FeeCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.feeCacheLookup.WithLabelValues(result).Inc()
}

func (m *Metrics) ReportRow(outcome string) {
	m.reports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
