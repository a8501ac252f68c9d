package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	incidentsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_incidents_created_total",
			Help: "Total number of incidents registered by the dispatch engine.",
		},
		[]string{"tier"},
	)

	allocationShortfallTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_vehicle_allocation_shortfall_total",
			Help: "Creates where the nearest station could not cover the tier requirement and the incident was repointed at the fallback station.",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		incidentsCreatedTotal,
		allocationShortfallTotal,
	)
}
