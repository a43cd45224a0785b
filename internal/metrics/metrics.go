package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wiredrone"

// Metrics holds the collectors shared by the client and the emulator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	pendingCalls   prometheus.Gauge
	callTimeouts   prometheus.Counter
	callsAborted   prometheus.Counter
	connections    prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer, subsystem string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Inbound frames by dispatch kind",
		}, []string{"kind"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames discarded without reaching a handler",
		}, []string{"reason"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Outbound frames by type",
		}, []string{"type"}),
		pendingCalls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_calls",
			Help:      "Requests waiting for a correlated reply",
		}),
		callTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "call_timeouts_total",
			Help:      "Requests resolved by their deadline",
		}),
		callsAborted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "calls_aborted_total",
			Help:      "Requests aborted by a closing connection",
		}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Open WebSocket connections",
		}),
	}
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) FrameSent(typ string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(typ).Inc()
}

// SetPendingCalls records the current size of the callback registry.
func (m *Metrics) SetPendingCalls(n int) {
	if m == nil {
		return
	}
	m.pendingCalls.Set(float64(n))
}

func (m *Metrics) CallTimedOut() {
	if m == nil {
		return
	}
	m.callTimeouts.Inc()
}

func (m *Metrics) CallsAborted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.callsAborted.Add(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
