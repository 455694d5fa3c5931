package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the relay's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections   prometheus.Gauge
	Rooms         prometheus.Gauge
	Events        *prometheus.CounterVec
	DroppedFrames prometheus.Counter
	Published     *prometheus.CounterVec
	HandlerPanics prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pmarket", Subsystem: "chat", Name: "connections",
			Help: "Live websocket connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pmarket", Subsystem: "chat", Name: "rooms",
			Help: "Rooms with at least one member.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmarket", Subsystem: "chat", Name: "events_total",
			Help: "Inbound events by tag.",
		}, []string{"event"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pmarket", Subsystem: "chat", Name: "dropped_frames_total",
			Help: "Frames dropped because a send queue was full or closed.",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmarket", Subsystem: "chat", Name: "push_published_total",
			Help: "Server pushes by event name.",
		}, []string{"event"}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pmarket", Subsystem: "chat", Name: "handler_panics_total",
			Help: "Recovered handler panics.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Rooms, m.Events, m.DroppedFrames, m.Published, m.HandlerPanics)
	}
	return m
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) setRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

func (m *Metrics) event(name string) {
	if m != nil {
		m.Events.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.DroppedFrames.Inc()
	}
}

func (m *Metrics) published(event string) {
	if m != nil {
		m.Published.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) panicked() {
	if m != nil {
		m.HandlerPanics.Inc()
	}
}
