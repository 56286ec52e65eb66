// Package metrics holds the Prometheus instrumentation for the fleet
// server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_updates_total",
		Help: "Accepted agent updates.",
	})

	UpdatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_updates_rejected_total",
		Help: "Rejected agent updates by reason.",
	}, []string{"reason"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_status_transitions_total",
		Help: "Node status transitions by edge.",
	}, []string{"from", "to"})

	SweeperDemotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_sweeper_demotions_total",
		Help: "Nodes demoted to stopped by the liveness sweeper.",
	})

	Observers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_observers",
		Help: "Currently connected fanout observers.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleet_events_dropped_total",
		Help: "Fanout events dropped on full observer queues.",
	})
)

// Register wires the Prometheus handler into the provided mux.
func Register(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())
}
