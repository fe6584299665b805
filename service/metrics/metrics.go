package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Completion outcomes
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
	OutcomeEmpty   = "empty"
	OutcomeStale   = "stale"
)

// Metrics holds all monitor metrics
type Metrics struct {
	// Frame loop counters
	Ticks          atomic.Uint64
	FramesRendered atomic.Uint64
	CaptureErrors  atomic.Uint64

	// Dispatcher counters
	Dispatched atomic.Uint64
	Abandoned  atomic.Uint64
	Dropped    atomic.Uint64
	InFlight   atomic.Int64

	// Last reported count
	LastCount atomic.Int64

	// Connected websocket clients
	ActiveClients atomic.Int64

	completions *prometheus.CounterVec
	latency     *prometheus.HistogramVec

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own Prometheus registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_recognition_completions_total",
				Help: "Recognition completions by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "traffic_recognition_latency_seconds",
				Help:    "Recognition round trip latency",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.completions, m.latency)

	// Frame loop metrics
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "traffic_ticks_total",
			Help: "Total frame loop ticks",
		},
		func() float64 { return float64(m.Ticks.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "traffic_frames_rendered_total",
			Help: "Total annotated frames handed to presenters",
		},
		func() float64 { return float64(m.FramesRendered.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "traffic_capture_errors_total",
			Help: "Total frame read failures",
		},
		func() float64 { return float64(m.CaptureErrors.Load()) },
	))

	// Dispatcher metrics
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "traffic_recognition_dispatched_total",
			Help: "Total frames submitted for recognition",
		},
		func() float64 { return float64(m.Dispatched.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "traffic_recognition_abandoned_total",
			Help: "Submissions abandoned while waiting for a slot",
		},
		func() float64 { return float64(m.Abandoned.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "traffic_recognition_dropped_total",
			Help: "Completions dropped after the session closed",
		},
		func() float64 { return float64(m.Dropped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "traffic_recognition_in_flight",
			Help: "Recognition calls currently in flight",
		},
		func() float64 { return float64(m.InFlight.Load()) },
	))

	// Result metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "traffic_last_count",
			Help: "Last reported vehicle or person count",
		},
		func() float64 { return float64(m.LastCount.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "traffic_websocket_clients",
			Help: "Connected websocket clients",
		},
		func() float64 { return float64(m.ActiveClients.Load()) },
	))
}

// ObserveCompletion records a completion outcome and its latency
func (m *Metrics) ObserveCompletion(mode, outcome string, latency time.Duration) {
	m.completions.WithLabelValues(mode, outcome).Inc()
	m.latency.WithLabelValues(mode).Observe(latency.Seconds())
}

// Completions returns the collector for completion outcomes
func (m *Metrics) Completions() *prometheus.CounterVec {
	return m.completions
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
