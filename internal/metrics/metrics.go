// Package metrics owns the Prometheus collectors of the dispatch core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "botcore"

// Metrics groups the collectors for dispatch, outbound sends and sessions.
type Metrics struct {
	mu sync.Mutex

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	sendsTotal       *prometheus.CounterVec
	sendWait         prometheus.Histogram
	sendInflight     prometheus.Gauge
	sessionsActive   *prometheus.GaugeVec
	sessionStarts    *prometheus.CounterVec
	auditEvents      *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newGaugeVec(subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
	)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

func newHistogram(subsystem, name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
	)
}

// New creates the collectors. Call Register before serving them.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:       registerer,
		dispatchTotal:    newCounterVec("dispatch", "total", "Dispatched events by handler kind and outcome", []string{"kind", "outcome"}),
		dispatchDuration: newHistogramVec("dispatch", "duration_seconds", "Handler run time including outbound waits", []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}, []string{"kind"}),
		sendsTotal:       newCounterVec("outbound", "sends_total", "Outbound sends by result", []string{"result"}),
		sendWait:         newHistogram("outbound", "wait_seconds", "Time a send spent waiting for its destination gate and rate floor", []float64{0, 0.1, 0.25, 0.5, 0.8, 1.6, 3.2, 6.4, 12.8}),
		sendInflight:     newGauge("outbound", "inflight", "Destinations with a send currently in progress"),
		sessionsActive:   newGaugeVec("session", "active", "Active sessions by kind", []string{"kind"}),
		sessionStarts:    newCounterVec("session", "starts_total", "Session start attempts by kind and result", []string{"kind", "result"}),
		auditEvents:      newCounterVec("audit", "events_total", "Audit events by direction", []string{"direction"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.dispatchTotal,
		m.dispatchDuration,
		m.sendsTotal,
		m.sendWait,
		m.sendInflight,
		m.sessionsActive,
		m.sessionStarts,
		m.auditEvents,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveDispatch records one finished dispatch.
func (m *Metrics) ObserveDispatch(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(kind, outcome).Inc()
	m.dispatchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveSend records one outbound send and how long it waited.
func (m *Metrics) ObserveSend(result string, wait time.Duration) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(result).Inc()
	m.sendWait.Observe(wait.Seconds())
}

// SetInflight sets the number of held destination gates.
func (m *Metrics) SetInflight(n int) {
	if m == nil {
		return
	}
	m.sendInflight.Set(float64(n))
}

// ObserveSessionStart counts a start attempt.
func (m *Metrics) ObserveSessionStart(kind, result string) {
	if m == nil {
		return
	}
	m.sessionStarts.WithLabelValues(kind, result).Inc()
}

// SetSessionsActive sets the active session gauge for kind.
func (m *Metrics) SetSessionsActive(kind string, n int) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(kind).Set(float64(n))
}

// ObserveAudit counts published and consumed audit events.
func (m *Metrics) ObserveAudit(direction string) {
	if m == nil {
		return
	}
	m.auditEvents.WithLabelValues(direction).Inc()
}
