// Package scoring keeps per-peer quality scores and misbehaviour charges and
// uses them to order peers for ledger requests.
package scoring

import (
	"sync"
	"time"
)

const (
	// HighLatencyThreshold is the latency above which a peer is considered slow.
	HighLatencyThreshold = 500 * time.Millisecond

	// ExcellentLatency is the latency considered excellent.
	ExcellentLatency = 50 * time.Millisecond

	// GoodLatency is the latency considered good.
	GoodLatency = 150 * time.Millisecond

	// LatencyHistorySize is how many latency samples to keep.
	LatencyHistorySize = 10

	BaseScore = 100
	MaxScore  = 1000
	MinScore  = -100
)

// PeerScore tracks how well a peer answers ledger requests.
type PeerScore struct {
	mu sync.Mutex

	latencyBonus int
	behaviorMod  int
	timeoutMod   int

	latencyHistory []time.Duration
	latencyIndex   int
	averageLatency time.Duration

	usefulReplies  int
	invalidReplies int
	timeouts       int
}

func NewPeerScore() *PeerScore {
	return &PeerScore{latencyHistory: make([]time.Duration, LatencyHistorySize)}
}

// Score returns the current score clamped to [MinScore, MaxScore].
func (ps *PeerScore) Score() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.scoreLocked()
}

func (ps *PeerScore) scoreLocked() int {
	score := BaseScore + ps.latencyBonus + ps.behaviorMod + ps.timeoutMod
	switch {
	case score > MaxScore:
		return MaxScore
	case score < MinScore:
		return MinScore
	}
	return score
}

// RecordLatency records the round trip of one request.
func (ps *PeerScore) RecordLatency(latency time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.latencyHistory[ps.latencyIndex] = latency
	ps.latencyIndex = (ps.latencyIndex + 1) % LatencyHistorySize

	var total time.Duration
	count := 0
	for _, l := range ps.latencyHistory {
		if l > 0 {
			total += l
			count++
		}
	}
	if count > 0 {
		ps.averageLatency = total / time.Duration(count)
	}

	switch {
	case ps.averageLatency <= 0:
		ps.latencyBonus = 0
	case ps.averageLatency <= ExcellentLatency:
		ps.latencyBonus = 50
	case ps.averageLatency <= GoodLatency:
		ps.latencyBonus = 25
	case ps.averageLatency <= HighLatencyThreshold:
		ps.latencyBonus = 0
	default:
		ps.latencyBonus = -25
	}
}

// RecordUseful records a reply that advanced an acquisition.
func (ps *PeerScore) RecordUseful() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.usefulReplies++
	ps.updateBehaviorLocked()
}

// RecordInvalid records a reply that failed verification.
func (ps *PeerScore) RecordInvalid() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.invalidReplies++
	ps.updateBehaviorLocked()
}

// RecordTimeout records a request the peer never answered.
func (ps *PeerScore) RecordTimeout() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.timeouts++
	ps.timeoutMod = -5 * min(ps.timeouts, 20)
}

func (ps *PeerScore) updateBehaviorLocked() {
	switch {
	case ps.invalidReplies > 10:
		ps.behaviorMod = -200
	case ps.invalidReplies > 3:
		ps.behaviorMod = -100
	case ps.invalidReplies > 0:
		ps.behaviorMod = -50
	default:
		ps.behaviorMod = min(ps.usefulReplies/10, 50)
	}
}

// IsHighLatency returns true if the peer has high latency.
func (ps *PeerScore) IsHighLatency() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.averageLatency > HighLatencyThreshold
}

// ScoreStats is a snapshot of a PeerScore.
type ScoreStats struct {
	Score          int
	AverageLatency time.Duration
	UsefulReplies  int
	InvalidReplies int
	Timeouts       int
}

func (ps *PeerScore) Stats() ScoreStats {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ScoreStats{
		Score:          ps.scoreLocked(),
		AverageLatency: ps.averageLatency,
		UsefulReplies:  ps.usefulReplies,
		InvalidReplies: ps.invalidReplies,
		Timeouts:       ps.timeouts,
	}
}
