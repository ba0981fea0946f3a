// Package nodestore provides persistent content-addressed storage for
// SHAMap nodes. Values are opaque bytes keyed by their 256-bit hash; a
// Database layers a positive and a negative cache over a pluggable Backend.
package nodestore

import (
	"context"
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// NodeType represents the type of object stored in the nodestore.
type NodeType uint32

const (
	NodeUnknown     NodeType = 0
	NodeLedger      NodeType = 1
	NodeAccount     NodeType = 3
	NodeTransaction NodeType = 4
)

func (nt NodeType) String() string {
	switch nt {
	case NodeUnknown:
		return "unknown"
	case NodeLedger:
		return "ledger"
	case NodeAccount:
		return "account"
	case NodeTransaction:
		return "transaction"
	default:
		return fmt.Sprintf("NodeType(%d)", uint32(nt))
	}
}

// Node is a stored object.
type Node struct {
	Type      NodeType
	Hash      types.Hash256
	Data      []byte
	LedgerSeq uint32
}

// Size returns the size of the node's data in bytes.
func (n *Node) Size() int {
	return len(n.Data)
}

// Status is the outcome of a backend operation.
type Status int

const (
	OK Status = iota
	NotFound
	DataCorrupt
	BackendError
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case NotFound:
		return "not found"
	case DataCorrupt:
		return "data corrupt"
	case BackendError:
		return "backend error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Backend is a raw key-value engine.
type Backend interface {
	// Name returns a human-readable name for this backend.
	Name() string

	// Open opens the backend for use.
	Open(createIfMissing bool) error

	// Close closes the backend and releases resources.
	Close() error

	// IsOpen returns true if the backend is currently open.
	IsOpen() bool

	// Fetch retrieves a single object by key.
	Fetch(key types.Hash256) (*Node, Status)

	// Store saves a single object.
	Store(node *Node) Status

	// StoreBatch saves multiple objects atomically where the engine allows.
	StoreBatch(nodes []*Node) Status

	// Sync forces pending writes to be flushed.
	Sync() Status

	// ForEach iterates over all objects in the backend.
	ForEach(fn func(*Node) error) error
}

// Database is the cached store consumed by the rest of the node.
type Database interface {
	Store(ctx context.Context, node *Node) error
	// Fetch returns nil, nil when the node is not stored.
	Fetch(ctx context.Context, hash types.Hash256) (*Node, error)
	FetchBatch(ctx context.Context, hashes []types.Hash256) ([]*Node, error)
	StoreBatch(ctx context.Context, nodes []*Node) error
	// Sweep removes expired entries from caches.
	Sweep() error
	Stats() Statistics
	Close() error
}

// Statistics holds performance counters for a Database.
type Statistics struct {
	Reads        uint64
	CacheHits    uint64
	CacheMisses  uint64
	NegativeHits uint64
	ReadBytes    uint64
	Writes       uint64
	WriteBytes   uint64
	CacheSize    int
	BackendName  string
}

func (s Statistics) String() string {
	hitRate := float64(0)
	if s.Reads > 0 {
		hitRate = float64(s.CacheHits) / float64(s.Reads) * 100
	}
	return fmt.Sprintf("nodestore %s: reads=%d (%.1f%% cached, %d known missing) writes=%d cache=%d",
		s.BackendName, s.Reads, hitRate, s.NegativeHits, s.Writes, s.CacheSize)
}
