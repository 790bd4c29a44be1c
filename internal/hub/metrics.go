package hub

import "github.com/prometheus/client_golang/prometheus"

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "bridge_hub_build_info",
			Help:        "Build information for the bridge hub",
			ConstLabels: prometheus.Labels{"component": "hub"},
		},
		[]string{"date", "sha", "version"},
	)

	metricConnectedContexts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_hub_connected_contexts",
			Help: "Number of page contexts holding a persistent channel",
		},
	)

	metricMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_hub_messages_total",
			Help: "Messages dispatched by the hub, by type and transport path",
		},
		[]string{"type", "transport"},
	)

	metricBroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_hub_broadcast_deliveries_total",
			Help: "Per-target broadcast delivery outcomes",
		},
		[]string{"result"},
	)
)

// RegisterMetrics registers hub metrics with the given registry.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(buildInfo, metricConnectedContexts, metricMessagesTotal, metricBroadcastsTotal)
}

// SetBuildInfo sets the build info metric for the hub.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}
