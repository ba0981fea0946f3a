package shamap

import (
	"bytes"
	"sync"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// MemoryFamily is an in-memory Family, used by tests and by maps that never
// touch disk.
type MemoryFamily struct {
	mu    sync.RWMutex
	store map[types.Hash256][]byte
}

// NewMemoryFamily creates a new in-memory Family.
func NewMemoryFamily() *MemoryFamily {
	return &MemoryFamily{
		store: make(map[types.Hash256][]byte),
	}
}

// Fetch implements Family.
func (f *MemoryFamily) Fetch(hash types.Hash256) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, ok := f.store[hash]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(data), nil
}

// StoreBatch implements Family.
func (f *MemoryFamily) StoreBatch(entries []FlushEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.store[e.Hash] = bytes.Clone(e.Data)
	}
	return nil
}

// Len returns the number of stored nodes.
func (f *MemoryFamily) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.store)
}
