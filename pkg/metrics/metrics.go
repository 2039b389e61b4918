// Package metrics exposes client-side counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "picochat"

// Outcome labels.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultStale     = "stale"
	ResultAppended  = "appended"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	sent            *prometheus.CounterVec
	received        *prometheus.CounterVec
	persistFailures prometheus.Counter
	history         *prometheus.CounterVec
	historyDuration prometheus.Histogram
	uploads         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Messages appended optimistically, by type",
			},
			[]string{"type"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Inbound realtime messages, by merge outcome",
			},
			[]string{"result"},
		),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Persistence writes that failed after an optimistic append",
		}),
		history: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_fetches_total",
				Help:      "History fetches, by result",
			},
			[]string{"result"},
		),
		historyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_fetch_duration_seconds",
			Help:      "Duration of history fetches",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Artifact uploads, by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.sent,
		m.received,
		m.persistFailures,
		m.history,
		m.historyDuration,
		m.uploads,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageSent(typ string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(typ).Inc()
}

func (m *Metrics) MessageReceived(result string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(result).Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) HistoryFetched(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.history.WithLabelValues(result).Inc()
	m.historyDuration.Observe(took.Seconds())
}

func (m *Metrics) Uploaded(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}
