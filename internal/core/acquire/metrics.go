package acquire

import "github.com/prometheus/client_golang/prometheus"

var (
	metricActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xrplsync",
		Subsystem: "acquire",
		Name:      "active",
		Help:      "ledger acquisitions in flight",
	})

	metricFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrplsync",
		Subsystem: "acquire",
		Name:      "finished_total",
		Help:      "ledger acquisitions that reached a terminal state, by state",
	}, []string{"state"})

	metricNodes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrplsync",
		Subsystem: "acquire",
		Name:      "nodes_total",
		Help:      "tree nodes received from peers, by add result",
	}, []string{"result"})
)

// Collectors returns the metrics exported by the acquire master.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{metricActive, metricFinished, metricNodes}
}
