package acquire

import (
	"sync"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RecentFailureCache remembers ledger hashes whose acquisition failed, each
// for a fixed interval. When full the oldest entry is dropped.
type RecentFailureCache struct {
	mu       sync.Mutex
	entries  *lru.Cache[types.Hash256, time.Time]
	interval time.Duration
	now      func() time.Time
}

// NewRecentFailureCache holds up to size hashes for interval each.
func NewRecentFailureCache(size int, interval time.Duration) *RecentFailureCache {
	if size <= 0 {
		size = 1
	}
	entries, _ := lru.New[types.Hash256, time.Time](size)
	return &RecentFailureCache{entries: entries, interval: interval, now: time.Now}
}

// Insert records a failure of hash, restarting its interval.
func (c *RecentFailureCache) Insert(hash types.Hash256) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(hash, c.now().Add(c.interval))
}

// Contains reports whether hash failed within the interval.
func (c *RecentFailureCache) Contains(hash types.Hash256) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires, ok := c.entries.Peek(hash)
	if !ok {
		return false
	}
	if !c.now().Before(expires) {
		c.entries.Remove(hash)
		return false
	}
	return true
}

func (c *RecentFailureCache) Remove(hash types.Hash256) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(hash)
}

// Sweep drops expired entries and returns how many were dropped.
func (c *RecentFailureCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for _, hash := range c.entries.Keys() {
		if expires, ok := c.entries.Peek(hash); ok && !now.Before(expires) {
			c.entries.Remove(hash)
			n++
		}
	}
	return n
}

func (c *RecentFailureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
