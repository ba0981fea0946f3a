package shamap

import (
	"iter"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// AddNodeResult is the outcome of offering one node to a syncing map.
type AddNodeResult uint8

const (
	// AddNodeOk means the node was valid but added nothing new.
	AddNodeOk AddNodeResult = iota
	// AddNodeUseful means the node filled a missing slot.
	AddNodeUseful
	// AddNodeInvalid means the node was malformed or did not match the hash
	// committed to for its position. The map is unchanged.
	AddNodeInvalid
)

func (r AddNodeResult) String() string {
	switch r {
	case AddNodeOk:
		return "ok"
	case AddNodeUseful:
		return "useful"
	case AddNodeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Combine folds two results: Invalid absorbs, otherwise Useful wins over Ok.
func Combine(a, b AddNodeResult) AddNodeResult {
	if a == AddNodeInvalid || b == AddNodeInvalid {
		return AddNodeInvalid
	}
	if a == AddNodeUseful || b == AddNodeUseful {
		return AddNodeUseful
	}
	return AddNodeOk
}

// CombineAll folds any number of results. No results is Ok.
func CombineAll(results ...AddNodeResult) AddNodeResult {
	out := AddNodeOk
	for _, r := range results {
		out = Combine(out, r)
	}
	return out
}

// Tally counts results of a batch, for logging.
type Tally struct {
	Good      int
	Duplicate int
	Bad       int
}

// Add records r and returns it.
func (t *Tally) Add(r AddNodeResult) AddNodeResult {
	switch r {
	case AddNodeUseful:
		t.Good++
	case AddNodeInvalid:
		t.Bad++
	default:
		t.Duplicate++
	}
	return r
}

// NewSyncing creates a map that is filled in with AddNode and must end up
// with root hash rootHash. A map expecting EmptyRootHash is complete at once.
func NewSyncing(mapType Type, rootHash types.Hash256, opts ...Option) *SHAMap {
	sm := newMap(mapType, opts)
	sm.state = StateSyncing
	sm.expectedRoot = rootHash
	sm.pending = make(map[types.Hash256]Node)
	if rootHash == EmptyRootHash {
		sm.root = &InnerNode{}
	}
	return sm
}

// AddNode verifies raw, the wire form of the node at path, and merges it into
// the map. expected, when not nil, is a hash the caller already knows the
// node must have.
//
// A node whose parent has not arrived is kept aside and attached once the
// parent shows up, so nodes may be added in any order. Such a node reports
// Ok; the node whose arrival attaches it reports Useful.
func (sm *SHAMap) AddNode(path NodeID, raw []byte, expected *types.Hash256) AddNodeResult {
	if path.Depth > MaxDepth || NewNodeID(path.Depth, path.ID) != path {
		return AddNodeInvalid
	}
	node, err := DeserializeNode(raw, sm.hasher)
	if err != nil {
		return AddNodeInvalid
	}
	hash := node.Hash()
	if expected != nil && *expected != hash {
		return AddNodeInvalid
	}
	switch n := node.(type) {
	case *InnerNode:
		if path.Depth >= MaxDepth || (n.IsEmpty() && !path.IsRoot()) {
			return AddNodeInvalid
		}
	case *LeafNode:
		if path.IsRoot() || !path.Contains(n.item.key) || !sm.mapType.accepts(n.kind) {
			return AddNodeInvalid
		}
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateSyncing {
		return AddNodeOk
	}

	if path.IsRoot() {
		if hash != sm.expectedRoot {
			return AddNodeInvalid
		}
		if sm.root != nil {
			return AddNodeOk
		}
		sm.root = node.(*InnerNode)
		sm.adoptPendingLocked(sm.root)
		return AddNodeUseful
	}

	parent, branch, result := sm.locateParentLocked(path)
	switch result {
	case parentInvalid:
		return AddNodeInvalid
	case parentUnknown:
		if _, ok := sm.pending[hash]; ok {
			return AddNodeOk
		}
		if len(sm.pending) < sm.maxPending {
			sm.pending[hash] = node
		}
		// Nothing vouches for a parked node yet; it only counts once
		// attached.
		return AddNodeOk
	}

	if parent.hashes[branch] != hash {
		return AddNodeInvalid
	}
	if parent.loadedChild(branch) != nil {
		return AddNodeOk
	}
	sm.attachLocked(parent, branch, node)
	return AddNodeUseful
}

type parentLookup int

const (
	parentFound parentLookup = iota
	parentUnknown
	parentInvalid
)

// locateParentLocked finds the inner node directly above path. The path is
// invalid if it runs into an empty branch or through a leaf.
func (sm *SHAMap) locateParentLocked(path NodeID) (*InnerNode, int, parentLookup) {
	if sm.root == nil {
		return nil, 0, parentUnknown
	}
	n := sm.root
	for d := uint8(0); ; d++ {
		branch := nibble(path.ID, d)
		if n.IsEmptyBranch(branch) {
			return nil, 0, parentInvalid
		}
		if d == path.Depth-1 {
			return n, branch, parentFound
		}
		switch c := sm.peek(n, branch).(type) {
		case nil:
			return nil, 0, parentUnknown
		case *LeafNode:
			return nil, 0, parentInvalid
		case *InnerNode:
			n = c
		}
	}
}

func (sm *SHAMap) attachLocked(parent *InnerNode, branch int, node Node) {
	delete(sm.pending, node.Hash())
	attached := parent.canonicalize(branch, node)
	if inner, ok := attached.(*InnerNode); ok {
		sm.adoptPendingLocked(inner)
	}
}

// adoptPendingLocked attaches every pending node n commits to.
func (sm *SHAMap) adoptPendingLocked(n *InnerNode) {
	if len(sm.pending) == 0 {
		return
	}
	for branch := 0; branch < BranchFactor; branch++ {
		if n.IsEmptyBranch(branch) || n.loadedChild(branch) != nil {
			continue
		}
		if child, ok := sm.pending[n.hashes[branch]]; ok {
			sm.attachLocked(n, branch, child)
		}
	}
}

// PendingCount returns the number of verified nodes waiting for a parent.
func (sm *SHAMap) PendingCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.pending)
}

// IsComplete reports whether every node down to the leaves is present.
func (sm *SHAMap) IsComplete() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.isCompleteLocked()
}

func (sm *SHAMap) isCompleteLocked() bool {
	if sm.root == nil {
		return false
	}
	for range sm.missingBelow(sm.root, RootNodeID) {
		return false
	}
	return true
}

// MissingNodes yields the position and expected hash of every node that is
// referenced but not present, in depth-first branch order. When the root is
// missing it is the only entry. The sequence can be iterated again to get
// the current state.
func (sm *SHAMap) MissingNodes() iter.Seq2[NodeID, types.Hash256] {
	return func(yield func(NodeID, types.Hash256) bool) {
		sm.mu.RLock()
		root, expected := sm.root, sm.expectedRoot
		sm.mu.RUnlock()

		if root == nil {
			yield(RootNodeID, expected)
			return
		}
		for id, hash := range sm.missingBelow(root, RootNodeID) {
			if !yield(id, hash) {
				return
			}
		}
	}
}

// MissingChildren yields the missing direct children of the node at path.
// Nothing is yielded if that node is itself absent or a leaf.
func (sm *SHAMap) MissingChildren(path NodeID) iter.Seq2[NodeID, types.Hash256] {
	return func(yield func(NodeID, types.Hash256) bool) {
		node, err := sm.nodeAt(path)
		if err != nil {
			return
		}
		inner, ok := node.(*InnerNode)
		if !ok {
			return
		}
		for branch := 0; branch < BranchFactor; branch++ {
			if inner.IsEmptyBranch(branch) || sm.peek(inner, branch) != nil {
				continue
			}
			if !yield(path.ChildNodeID(branch), inner.hashes[branch]) {
				return
			}
		}
	}
}

// missingBelow walks the present part of the subtree at n. It holds no map
// lock; nodes guard their own child slots.
func (sm *SHAMap) missingBelow(n *InnerNode, id NodeID) iter.Seq2[NodeID, types.Hash256] {
	return func(yield func(NodeID, types.Hash256) bool) {
		sm.walkMissing(n, id, yield)
	}
}

func (sm *SHAMap) walkMissing(n *InnerNode, id NodeID, yield func(NodeID, types.Hash256) bool) bool {
	for branch := 0; branch < BranchFactor; branch++ {
		if n.IsEmptyBranch(branch) {
			continue
		}
		switch c := sm.peek(n, branch).(type) {
		case nil:
			if !yield(id.ChildNodeID(branch), n.hashes[branch]) {
				return false
			}
		case *InnerNode:
			if !sm.walkMissing(c, id.ChildNodeID(branch), yield) {
				return false
			}
		}
	}
	return true
}
