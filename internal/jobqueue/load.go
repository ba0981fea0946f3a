package jobqueue

import (
	"sync/atomic"
	"time"
)

// LoadMonitor tracks per-type counters and queue latency. All fields are
// atomics so workers update them without holding the queue lock.
type LoadMonitor struct {
	info TypeInfo

	waiting   atomic.Int64
	running   atomic.Int64
	completed atomic.Uint64
	dropped   atomic.Uint64

	// Exponentially weighted average and last sample of queue latency, in ns.
	avgLatency  atomic.Int64
	lastLatency atomic.Int64
}

func newLoadMonitor(info TypeInfo) *LoadMonitor {
	return &LoadMonitor{info: info}
}

// addSample folds one queue latency sample into the running average with
// weight 1/8.
func (m *LoadMonitor) addSample(d time.Duration) {
	sample := int64(d)
	m.lastLatency.Store(sample)
	for {
		old := m.avgLatency.Load()
		next := old + (sample-old)/8
		if old == 0 {
			next = sample
		}
		if m.avgLatency.CompareAndSwap(old, next) {
			return
		}
	}
}

// IsOver reports whether observed latency exceeds the type's targets.
func (m *LoadMonitor) IsOver() bool {
	if m.info.AvgLatency > 0 && time.Duration(m.avgLatency.Load()) > m.info.AvgLatency {
		return true
	}
	if m.info.PeakLatency > 0 && time.Duration(m.lastLatency.Load()) > m.info.PeakLatency {
		return true
	}
	return false
}

// TypeStats is a point-in-time snapshot of one job type.
type TypeStats struct {
	Type       JobType
	Name       string
	Waiting    int64
	Running    int64
	Completed  uint64
	Dropped    uint64
	AvgLatency time.Duration
	Overloaded bool
}

func (m *LoadMonitor) snapshot() TypeStats {
	return TypeStats{
		Type:       m.info.Type,
		Name:       m.info.Name,
		Waiting:    m.waiting.Load(),
		Running:    m.running.Load(),
		Completed:  m.completed.Load(),
		Dropped:    m.dropped.Load(),
		AvgLatency: time.Duration(m.avgLatency.Load()),
		Overloaded: m.IsOver(),
	}
}
