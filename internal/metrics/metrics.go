package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the sync server.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	JoinAttempts      *prometheus.CounterVec
	EventsRelayed     *prometheus.CounterVec
	DroppedDeliveries prometheus.Counter
}

// New creates and registers all collectors on reg. Passing nil registers
// on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "memosync_connections_total",
			Help: "Total WebSocket connections accepted",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memosync_active_connections",
			Help: "Current open WebSocket connections",
		}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "memosync_active_rooms",
			Help: "Rooms with at least one member",
		}),
		JoinAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memosync_join_attempts_total",
			Help: "Join attempts by outcome",
		}, []string{"result"}),
		EventsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memosync_events_relayed_total",
			Help: "Events fanned out by kind",
		}, []string{"kind"}),
		DroppedDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "memosync_dropped_deliveries_total",
			Help: "Deliveries dropped because a recipient buffer was full or gone",
		}),
	}
}

// Handler exposes the default registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
