// Package server exposes operational metrics for Prometheus scraping.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the relay's instrumentation. Each Metrics value owns its
// own Prometheus registry so tests can create instances freely without
// duplicate-registration panics.
type Metrics struct {
	ActiveRooms       prometheus.Gauge
	ActiveConnections prometheus.Gauge
	RoomsCreated      prometheus.Counter
	MessagesRelayed   prometheus.Counter
	MessagesReplayed  prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers the relay's metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_rooms_active",
			Help: "Number of rooms currently registered.",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_connections_active",
			Help: "Number of live chat connections.",
		}),
		RoomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_rooms_created_total",
			Help: "Total rooms created since process start.",
		}),
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_messages_relayed_total",
			Help: "Total talk messages appended and broadcast.",
		}),
		MessagesReplayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_messages_replayed_total",
			Help: "Total history messages replayed to late joiners.",
		}),
		registry: registry,
	}
}

// Handler returns an http.Handler serving this metric set in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
