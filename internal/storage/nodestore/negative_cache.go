package nodestore

import (
	"sync"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// NegativeCache remembers hashes known to be absent from the backend so
// repeated lookups for missing nodes skip the disk. Entries expire after
// ttl; when full the least recently marked entry is evicted.
type NegativeCache struct {
	mu      sync.Mutex
	entries *lru.Cache[types.Hash256, time.Time]
	ttl     time.Duration
	now     func() time.Time
}

// NewNegativeCache creates a negative cache. maxSize must be positive.
func NewNegativeCache(maxSize int, ttl time.Duration) *NegativeCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	entries, _ := lru.New[types.Hash256, time.Time](maxSize)
	return &NegativeCache{entries: entries, ttl: ttl, now: time.Now}
}

// MarkMissing records hash as absent.
func (nc *NegativeCache) MarkMissing(hash types.Hash256) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.entries.Add(hash, nc.now().Add(nc.ttl))
}

// IsMissing reports whether hash was recently marked missing.
func (nc *NegativeCache) IsMissing(hash types.Hash256) bool {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	expires, ok := nc.entries.Peek(hash)
	if !ok {
		return false
	}
	if !nc.now().Before(expires) {
		nc.entries.Remove(hash)
		return false
	}
	return true
}

// Remove forgets hash, typically because it was just stored.
func (nc *NegativeCache) Remove(hash types.Hash256) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.entries.Remove(hash)
}

// Sweep drops expired entries and returns how many were removed.
func (nc *NegativeCache) Sweep() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	now := nc.now()
	removed := 0
	for _, hash := range nc.entries.Keys() {
		expires, ok := nc.entries.Peek(hash)
		if ok && !now.Before(expires) {
			nc.entries.Remove(hash)
			removed++
		}
	}
	return removed
}

func (nc *NegativeCache) Size() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.entries.Len()
}
