// Package monitoring registers the service's Prometheus collectors.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the draft core touches. A single instance
// is created in main and threaded through the API and the hub.
type Metrics struct {
	ActionsTotal    *prometheus.CounterVec // op, outcome (applied|rejected)
	RejectionsTotal *prometheus.CounterVec // reason
	SessionsCreated prometheus.Counter
	StreamsOpen     prometheus.Gauge
	BroadcastsTotal prometheus.Counter
	TickerRooms     prometheus.Gauge
}

// New registers collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draft",
			Name:      "actions_total",
			Help:      "Player actions by op and outcome.",
		}, []string{"op", "outcome"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draft",
			Name:      "rejections_total",
			Help:      "Reducer rejections by reason.",
		}, []string{"reason"}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "draft",
			Name:      "sessions_created_total",
			Help:      "Draft sessions created.",
		}),
		StreamsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "draft",
			Name:      "streams_open",
			Help:      "Spectator streams currently open.",
		}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "draft",
			Name:      "broadcasts_total",
			Help:      "Events fanned out to spectator streams.",
		}),
		TickerRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "draft",
			Name:      "ticker_rooms",
			Help:      "Sessions with a live ticker.",
		}),
	}
}
