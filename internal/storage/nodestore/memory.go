package nodestore

import (
	"sync"
	"sync/atomic"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// MemoryBackend keeps nodes in a map. Used by tests and ephemeral nodes.
type MemoryBackend struct {
	mu    sync.RWMutex
	nodes map[types.Hash256]*Node
	open  atomic.Bool
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{nodes: make(map[types.Hash256]*Node)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Open(bool) error {
	if !m.open.CompareAndSwap(false, true) {
		return ErrBackendOpen
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	m.open.Store(false)
	return nil
}

func (m *MemoryBackend) IsOpen() bool { return m.open.Load() }

func (m *MemoryBackend) Fetch(key types.Hash256) (*Node, Status) {
	if !m.IsOpen() {
		return nil, BackendError
	}
	m.mu.RLock()
	n, ok := m.nodes[key]
	m.mu.RUnlock()
	if !ok {
		return nil, NotFound
	}
	return copyNode(n), OK
}

func (m *MemoryBackend) Store(node *Node) Status {
	return m.StoreBatch([]*Node{node})
}

func (m *MemoryBackend) StoreBatch(nodes []*Node) Status {
	if !m.IsOpen() {
		return BackendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.nodes[n.Hash] = copyNode(n)
	}
	return OK
}

func (m *MemoryBackend) Sync() Status { return OK }

func (m *MemoryBackend) ForEach(fn func(*Node) error) error {
	m.mu.RLock()
	snapshot := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		snapshot = append(snapshot, n)
	}
	m.mu.RUnlock()

	for _, n := range snapshot {
		if err := fn(copyNode(n)); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored nodes.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

func copyNode(n *Node) *Node {
	c := *n
	c.Data = append([]byte(nil), n.Data...)
	return &c
}
