package shamap

import (
	"context"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// NodeStoreFamily implements Family on top of a nodestore.Database. Nodes
// are stored in prefixed form, so the stored bytes hash to their key.
type NodeStoreFamily struct {
	db       nodestore.Database
	nodeType nodestore.NodeType
	timeout  time.Duration
}

// NewNodeStoreFamily creates a Family backed by db. nodeType tags stored
// objects; it does not affect retrieval.
func NewNodeStoreFamily(db nodestore.Database, nodeType nodestore.NodeType) *NodeStoreFamily {
	return &NodeStoreFamily{db: db, nodeType: nodeType, timeout: 30 * time.Second}
}

// NewMemoryNodeStoreFamily creates a Family over an in-memory nodestore.
func NewMemoryNodeStoreFamily() (*NodeStoreFamily, error) {
	backend := nodestore.NewMemoryBackend()
	if err := backend.Open(true); err != nil {
		return nil, err
	}
	cfg := nodestore.DefaultConfig()
	cfg.Backend = "memory"
	return NewNodeStoreFamily(nodestore.NewDatabase(backend, cfg), nodestore.NodeAccount), nil
}

// Fetch returns nil, nil when the node is not stored.
func (f *NodeStoreFamily) Fetch(hash types.Hash256) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	node, err := f.db.Fetch(ctx, hash)
	if err != nil || node == nil {
		return nil, err
	}
	return node.Data, nil
}

func (f *NodeStoreFamily) StoreBatch(entries []FlushEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	nodes := make([]*nodestore.Node, len(entries))
	for i, e := range entries {
		nodes[i] = &nodestore.Node{Type: f.nodeType, Hash: e.Hash, Data: e.Data}
	}
	return f.db.StoreBatch(ctx, nodes)
}

// Database returns the underlying store.
func (f *NodeStoreFamily) Database() nodestore.Database {
	return f.db
}
