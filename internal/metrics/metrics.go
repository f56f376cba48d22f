// Package metrics exposes the client's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors on a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	registry    *prometheus.Registry
	txTotal     *prometheus.CounterVec
	txSeconds   *prometheus.HistogramVec
	events      *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	subscribers prometheus.Gauge
	limited     prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		txTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tetris",
			Name:      "tx_total",
			Help:      "Contract transactions by method and result.",
		}, []string{"method", "result"}),
		txSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tetris",
			Name:      "tx_seconds",
			Help:      "Time from send to receipt.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 20, 45, 90},
		}, []string{"method"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tetris",
			Name:      "events_total",
			Help:      "Contract events received.",
		}, []string{"event"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tetris",
			Name:      "refresh_total",
			Help:      "State refreshes by part and outcome (applied, stale, error).",
		}, []string{"part", "outcome"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tetris",
			Name:      "stream_subscribers",
			Help:      "Open SSE streams.",
		}),
		limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tetris",
			Name:      "rate_limited_total",
			Help:      "Action requests rejected by the rate limiter.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.txTotal, m.txSeconds, m.events, m.refreshes, m.subscribers, m.limited,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTx(method, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.txTotal.WithLabelValues(method, result).Inc()
	m.txSeconds.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveEvent(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveRefresh(part, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(part, outcome).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

// WatchRooms exports fn as the number of rooms with a refresh loop.
func (m *Metrics) WatchRooms(fn func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tetris",
		Name:      "watched_rooms",
		Help:      "Rooms with a running refresh loop.",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.limited.Inc()
}
