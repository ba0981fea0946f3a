package wsnet

import "github.com/prometheus/client_golang/prometheus"

var (
	metricPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xrplsync",
		Subsystem: "overlay",
		Name:      "peers",
		Help:      "Connected peers.",
	})
	metricMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrplsync",
		Subsystem: "overlay",
		Name:      "messages_total",
		Help:      "Peer messages by type and direction.",
	}, []string{"type", "direction"})
)

// Collectors returns the overlay metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{metricPeers, metricMessages}
}
