// Package metrics owns the Prometheus collectors of the ledger service.
// Collectors live on a private registry so tests can build as many
// instances as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estudio"

// Outcome labels for ledger operations.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	LedgerOps        *prometheus.CounterVec
	LedgerOpDuration *prometheus.HistogramVec
	PaymentsCents    prometheus.Counter
	CapRejections    prometheus.Counter
	LedgersCreated   prometheus.Counter
	SummaryCache     *prometheus.CounterVec
	EventsPublished  *prometheus.CounterVec
	EventsConsumed   *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		LedgerOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in a ledger operation including the lock wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		PaymentsCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payments_cents_total",
			Help:      "Sum of committed payment amounts in cents.",
		}),
		CapRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "annual_cap_rejections_total",
			Help:      "Payments or fee changes rejected by the annual cap.",
		}),
		LedgersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "schedules_created_total",
			Help:      "Fee schedules seeded with their 13 obligations.",
		}),
		SummaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary_cache",
			Name:      "lookups_total",
			Help:      "Summary cache lookups by result.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Ledger events handed to the publisher, by action and outcome.",
		}, []string{"action", "outcome"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Ledger events processed by the audit worker, by action and outcome.",
		}, []string{"action", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LedgerOps, m.LedgerOpDuration, m.PaymentsCents, m.CapRejections, m.LedgersCreated,
		m.SummaryCache, m.EventsPublished, m.EventsConsumed, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLedgerOp records one ledger operation. Nil receivers are no-ops so
// callers can run without metrics.
func (m *Metrics) ObserveLedgerOp(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.LedgerOps.WithLabelValues(op, outcome).Inc()
	m.LedgerOpDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObservePayment(cents int64) {
	if m == nil {
		return
	}
	m.PaymentsCents.Add(float64(cents))
}

func (m *Metrics) ObserveCapRejection() {
	if m == nil {
		return
	}
	m.CapRejections.Inc()
}

func (m *Metrics) ObserveLedgerCreated() {
	if m == nil {
		return
	}
	m.LedgersCreated.Inc()
}

func (m *Metrics) ObserveSummaryCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SummaryCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEventPublished(action, outcome string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveEventConsumed(action, outcome string) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
