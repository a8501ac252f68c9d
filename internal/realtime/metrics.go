package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnectionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_websocket_connections",
			Help: "Number of live websocket connections.",
		},
	)

	eventsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_realtime_events_emitted_total",
			Help: "Realtime events emitted, by event name.",
		},
		[]string{"event"},
	)

	droppedSendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "api_realtime_dropped_sends_total",
			Help: "Event frames dropped because a client send buffer was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		wsConnectionsGauge,
		eventsEmittedTotal,
		droppedSendsTotal,
	)
}
