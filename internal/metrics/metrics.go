package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for undelivered messages
const (
	DropReasonClosed     = "closed"
	DropReasonBufferFull = "buffer_full"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	RoomsActive       prometheus.Gauge
	ConnectionsActive prometheus.Gauge
	Joins             *prometheus.CounterVec
	MessagesRelayed   prometheus.Counter
	MessagesDropped   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_rooms_active",
			Help: "Rooms with at least one member.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaling_connections_active",
			Help: "Open signaling connections.",
		}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_joins_total",
			Help: "Room admissions by assigned role.",
		}, []string{"role"}),
		MessagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaling_messages_relayed_total",
			Help: "Messages queued for delivery to a peer.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaling_messages_dropped_total",
			Help: "Messages that could not be queued for a peer.",
		}, []string{"reason"}),
		gatherer: reg,
	}
	reg.MustRegister(m.RoomsActive, m.ConnectionsActive, m.Joins, m.MessagesRelayed, m.MessagesDropped)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.RoomsActive.Inc()
	}
}

func (m *Metrics) RoomRemoved() {
	if m != nil {
		m.RoomsActive.Dec()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ConnectionsActive.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ConnectionsActive.Dec()
	}
}

func (m *Metrics) Joined(role string) {
	if m != nil {
		m.Joins.WithLabelValues(role).Inc()
	}
}

func (m *Metrics) Relayed() {
	if m != nil {
		m.MessagesRelayed.Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.MessagesDropped.WithLabelValues(reason).Inc()
	}
}
