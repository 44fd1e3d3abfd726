package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks relay activity. Each instance owns its registry so tests
// can spin up multiple servers without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	connections    prometheus.Gauge
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	framesDropped  prometheus.Counter
	messagesRouted *prometheus.CounterVec
	queueFlushed   prometheus.Counter
	broadcasts     prometheus.Counter
	sweepClosed    prometheus.Counter
}

// NewMetrics creates and registers all relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "courier_connections",
			Help: "Number of currently attached transports.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_frames_received_total",
			Help: "Inbound frames by type.",
		}, []string{"type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_frames_sent_total",
			Help: "Outbound frames by type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_frames_dropped_total",
			Help: "Malformed inbound frames dropped without a reply.",
		}),
		messagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_messages_routed_total",
			Help: "Routed messages by outcome (delivered or queued).",
		}, []string{"outcome"}),
		queueFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_queue_flushed_total",
			Help: "Offline-queued messages flushed on identify.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_roster_broadcasts_total",
			Help: "Full roster broadcasts.",
		}),
		sweepClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_sweep_closed_total",
			Help: "Transports closed by the liveness sweep.",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.framesReceived,
		m.framesSent,
		m.framesDropped,
		m.messagesRouted,
		m.queueFlushed,
		m.broadcasts,
		m.sweepClosed,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordConnections(n int) {
	m.connections.Set(float64(n))
}

func (m *Metrics) RecordFrameReceived(frameType string) {
	m.framesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordFrameSent(frameType string) {
	m.framesSent.WithLabelValues(frameType).Inc()
}

func (m *Metrics) RecordFrameDropped() {
	m.framesDropped.Inc()
}

func (m *Metrics) RecordMessageRouted(outcome string) {
	m.messagesRouted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordQueueFlushed(n int) {
	m.queueFlushed.Add(float64(n))
}

func (m *Metrics) RecordBroadcast() {
	m.broadcasts.Inc()
}

func (m *Metrics) RecordSweepClosed() {
	m.sweepClosed.Inc()
}
