package validations

import "github.com/prometheus/client_golang/prometheus"

var (
	metricAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrplsync",
		Subsystem: "validations",
		Name:      "added_total",
		Help:      "validations offered to the tracker, by outcome",
	}, []string{"result"})

	metricLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xrplsync",
		Subsystem: "validations",
		Name:      "live_records",
		Help:      "validation records currently held",
	})
)

// Collectors returns the metrics exported by the tracker.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{metricAdded, metricLive}
}
