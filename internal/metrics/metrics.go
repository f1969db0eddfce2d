// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtchat_connections_total",
		Help: "Accepted websocket connections.",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtchat_connections_active",
		Help: "Currently open websocket connections.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtchat_events_total",
		Help: "Inbound client events by name.",
	}, []string{"event"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtchat_events_dropped_total",
		Help: "Inbound events dropped by the per-connection rate limiter.",
	}, []string{"event"})

	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtchat_messages_created_total",
		Help: "Messages persisted by the lifecycle engine.",
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
