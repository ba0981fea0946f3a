package nodestore

import (
	"sync/atomic"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded positive cache of recently used nodes. Entries expire
// after the configured TTL regardless of use.
type Cache struct {
	lru    *expirable.LRU[types.Hash256, *Node]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// NewCache creates a cache holding at most maxSize nodes for ttl each.
// A maxSize of zero disables the size bound.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[types.Hash256, *Node](maxSize, nil, ttl)}
}

func (c *Cache) Get(hash types.Hash256) (*Node, bool) {
	n, ok := c.lru.Get(hash)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return n, ok
}

func (c *Cache) Put(node *Node) {
	c.lru.Add(node.Hash, node)
}

func (c *Cache) Remove(hash types.Hash256) {
	c.lru.Remove(hash)
}

func (c *Cache) Clear() {
	c.lru.Purge()
}

// Size returns the number of live entries.
func (c *Cache) Size() int {
	return c.lru.Len()
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{Size: c.lru.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}
