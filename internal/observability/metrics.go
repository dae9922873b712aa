package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of the realtime and notification paths.
type Metrics struct {
	// ActiveConnections is the number of sockets currently admitted.
	ActiveConnections prometheus.Gauge

	// SupersededConnections counts sockets closed because the same user
	// connected again.
	SupersededConnections prometheus.Counter

	// Envelopes counts push attempts.
	// Labels: type (new_message|post_reaction|...), result (delivered|dropped)
	Envelopes *prometheus.CounterVec

	// Notifications counts persisted notification rows.
	// Labels: type
	Notifications *prometheus.CounterVec

	// SocketRejections counts sockets closed by the auth gate.
	// Labels: reason (missing|invalid|wrong_type)
	SocketRejections *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relo_ws_active_connections",
			Help: "Number of live websocket connections held by the registry",
		}),
		SupersededConnections: factory.NewCounter(prometheus.CounterOpts{
			Name: "relo_ws_superseded_connections_total",
			Help: "Connections closed because the same user connected again",
		}),
		Envelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relo_ws_envelopes_total",
			Help: "Push envelopes by type and delivery result",
		}, []string{"type", "result"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relo_notifications_created_total",
			Help: "Persisted notifications by type",
		}, []string{"type"}),
		SocketRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relo_ws_rejections_total",
			Help: "Websocket connections rejected by the auth gate",
		}, []string{"reason"}),
	}
}

// NopMetrics returns metrics bound to a throwaway registry.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
