package scoring

import (
	"sync"
	"time"
)

const (
	// DefaultChargeLimit is the balance at which a peer is dropped.
	DefaultChargeLimit = 10000

	// DefaultDecayRate is how much balance decays per second.
	DefaultDecayRate = 100

	// DefaultWarningThreshold is the fraction of the limit that logs a warning.
	DefaultWarningThreshold = 0.75
)

// ChargeType is the cost class of something a peer did.
type ChargeType int

const (
	ChargeNone ChargeType = iota
	ChargeLow
	ChargeMedium
	ChargeHigh
	ChargeInvalid
)

// Amount returns the balance added by a charge of this type.
func (c ChargeType) Amount() int {
	switch c {
	case ChargeLow:
		return 10
	case ChargeMedium:
		return 50
	case ChargeHigh:
		return 200
	case ChargeInvalid:
		return 2000
	default:
		return 0
	}
}

// Consumer is a decaying misbehaviour balance.
type Consumer struct {
	mu        sync.Mutex
	balance   int
	limit     int
	decayRate int
	lastDecay time.Time
	now       func() time.Time
}

func newConsumer(now func() time.Time) *Consumer {
	return &Consumer{
		limit:     DefaultChargeLimit,
		decayRate: DefaultDecayRate,
		lastDecay: now(),
		now:       now,
	}
}

// Charge adds c and returns the resulting balance.
func (rc *Consumer) Charge(c ChargeType) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.decayLocked()
	rc.balance += c.Amount()
	return rc.balance
}

// Usage returns the balance as a fraction of the limit.
func (rc *Consumer) Usage() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.decayLocked()
	return float64(rc.balance) / float64(rc.limit)
}

// ShouldDisconnect reports whether the balance reached the limit.
func (rc *Consumer) ShouldDisconnect() bool {
	return rc.Usage() >= 1
}

func (rc *Consumer) decayLocked() {
	now := rc.now()
	seconds := int(now.Sub(rc.lastDecay) / time.Second)
	if seconds <= 0 {
		return
	}
	rc.lastDecay = rc.lastDecay.Add(time.Duration(seconds) * time.Second)
	rc.balance = max(rc.balance-seconds*rc.decayRate, 0)
}
