package jobqueue

import "github.com/prometheus/client_golang/prometheus"

var (
	metricWaiting = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xrplsync",
		Subsystem: "jobqueue",
		Name:      "waiting",
		Help:      "jobs queued and not yet started, by type",
	}, []string{"type"})

	metricRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xrplsync",
		Subsystem: "jobqueue",
		Name:      "running",
		Help:      "jobs currently executing, by type",
	}, []string{"type"})

	metricCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrplsync",
		Subsystem: "jobqueue",
		Name:      "completed_total",
		Help:      "jobs finished, by type",
	}, []string{"type"})

	metricLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xrplsync",
		Subsystem: "jobqueue",
		Name:      "queue_latency_seconds",
		Help:      "time between enqueue and start of a job",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"type"})
)

// Collectors returns the metrics exported by the job queue.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{metricWaiting, metricRunning, metricCompleted, metricLatency}
}
