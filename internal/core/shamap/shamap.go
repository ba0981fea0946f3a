package shamap

import (
	"fmt"
	"sync"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// SHAMap is the main structure representing the tree
type SHAMap struct {
	mu      sync.RWMutex
	root    *InnerNode // nil while a syncing map has not received its root
	mapType Type
	state   State

	hasher crypto.Hasher
	family Family

	// Syncing state.
	expectedRoot types.Hash256
	pending      map[types.Hash256]Node
	maxPending   int
}

func newMap(mapType Type, opts []Option) *SHAMap {
	sm := &SHAMap{
		mapType:    mapType,
		state:      StateModifying,
		hasher:     crypto.DefaultHasher,
		maxPending: defaultMaxPending,
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// New creates a new empty SHAMap with the specified type
func New(mapType Type, opts ...Option) *SHAMap {
	sm := newMap(mapType, opts)
	sm.root = &InnerNode{}
	return sm
}

// NewBacked opens the immutable map with the given root hash, paging nodes in
// from family on demand.
func NewBacked(mapType Type, rootHash types.Hash256, family Family, opts ...Option) (*SHAMap, error) {
	sm := newMap(mapType, append(opts, WithFamily(family)))
	sm.state = StateImmutable
	if rootHash == EmptyRootHash {
		sm.root = &InnerNode{}
		return sm, nil
	}

	node, err := sm.fetch(rootHash)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("%w: root %s", ErrMissingNode, rootHash)
	}
	root, ok := node.(*InnerNode)
	if !ok {
		return nil, fmt.Errorf("%w: root %s is a leaf", ErrInvalidNodeData, rootHash)
	}
	sm.root = root
	return sm, nil
}

// Type returns the map type
func (sm *SHAMap) Type() Type {
	return sm.mapType
}

// State returns the current state
func (sm *SHAMap) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Hash returns the root hash. A syncing map without its root reports the
// hash it expects.
func (sm *SHAMap) Hash() types.Hash256 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.root == nil {
		return sm.expectedRoot
	}
	return sm.root.Hash()
}

// SetImmutable seals the map. A syncing map can only be sealed once complete.
func (sm *SHAMap) SetImmutable() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateInvalid:
		return fmt.Errorf("cannot seal map in state %s", sm.state)
	case StateSyncing:
		if !sm.isCompleteLocked() {
			return ErrIncomplete
		}
		sm.pending = nil
	}
	sm.state = StateImmutable
	return nil
}

// Snapshot returns a copy sharing every node with sm. A mutable snapshot can
// be modified without affecting sm.
func (sm *SHAMap) Snapshot(mutable bool) (*SHAMap, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.state == StateSyncing {
		return nil, ErrSyncing
	}
	out := &SHAMap{
		root:       sm.root,
		mapType:    sm.mapType,
		state:      StateImmutable,
		hasher:     sm.hasher,
		family:     sm.family,
		maxPending: sm.maxPending,
	}
	if mutable {
		out.state = StateModifying
	}
	return out, nil
}

func (sm *SHAMap) currentRoot() *InnerNode {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.root
}

// fetch loads and verifies the node with the given hash from the family.
// It returns nil, nil when the family does not have it.
func (sm *SHAMap) fetch(hash types.Hash256) (Node, error) {
	if sm.family == nil {
		return nil, nil
	}
	data, err := sm.family.Fetch(hash)
	if err != nil {
		return nil, fmt.Errorf("fetch node %s: %w", hash.Short(), err)
	}
	if data == nil {
		return nil, nil
	}
	node, err := decodePrefixed(data, sm.hasher)
	if err != nil {
		return nil, err
	}
	if node.Hash() != hash {
		return nil, fmt.Errorf("%w: stored node %s", ErrNodeHashMismatch, hash.Short())
	}
	return node, nil
}

// descend returns the child in branch, paging it in if needed. An empty branch
// yields nil, nil; an unavailable child yields ErrMissingNode.
func (sm *SHAMap) descend(n *InnerNode, branch int) (Node, error) {
	hash := n.hashes[branch]
	if hash.IsZero() {
		return nil, nil
	}
	if child := n.loadedChild(branch); child != nil {
		return child, nil
	}
	child, err := sm.fetch(hash)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingNode, hash.Short())
	}
	return n.canonicalize(branch, child), nil
}

// peek is descend for syncing traversal: unavailable children are nil.
func (sm *SHAMap) peek(n *InnerNode, branch int) Node {
	child, err := sm.descend(n, branch)
	if err != nil {
		return nil
	}
	return child
}

// Get returns the item stored under key.
func (sm *SHAMap) Get(key types.Hash256) (*Item, bool, error) {
	root := sm.currentRoot()
	if root == nil {
		return nil, false, ErrSyncing
	}

	node := Node(root)
	for depth := uint8(0); ; depth++ {
		switch n := node.(type) {
		case *LeafNode:
			if n.item.key == key {
				return n.item, true, nil
			}
			return nil, false, nil
		case *InnerNode:
			child, err := sm.descend(n, nibble(key, depth))
			if err != nil {
				return nil, false, err
			}
			if child == nil {
				return nil, false, nil
			}
			node = child
		}
	}
}

// Has reports whether key is present.
func (sm *SHAMap) Has(key types.Hash256) (bool, error) {
	_, ok, err := sm.Get(key)
	return ok, err
}

// Put inserts or replaces the item under key, using the leaf kind that
// matches the map type.
func (sm *SHAMap) Put(key types.Hash256, data []byte) error {
	return sm.PutLeaf(sm.mapType.defaultLeafKind(), key, data)
}

// PutLeaf inserts or replaces the item under key as a leaf of the given kind.
// A LeafTransaction is normally keyed by its transaction ID; its wire form
// carries no key, so peers derive the key from the data.
func (sm *SHAMap) PutLeaf(kind LeafKind, key types.Hash256, data []byte) error {
	if !sm.mapType.accepts(kind) {
		return fmt.Errorf("%w: %s in %s map", ErrWrongLeafType, kind, sm.mapType)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.checkMutableLocked(); err != nil {
		return err
	}
	leaf := newLeaf(sm.hasher, kind, NewItem(key, data))
	root, err := sm.putAt(sm.root, RootNodeID, leaf)
	if err != nil {
		return err
	}
	sm.root = root
	return nil
}

func (sm *SHAMap) checkMutableLocked() error {
	switch sm.state {
	case StateModifying:
		return nil
	case StateSyncing:
		return ErrSyncing
	default:
		return ErrImmutable
	}
}

func (sm *SHAMap) putAt(n *InnerNode, id NodeID, leaf *LeafNode) (*InnerNode, error) {
	branch := id.SelectBranch(leaf.item.key)
	child, err := sm.descend(n, branch)
	if err != nil {
		return nil, err
	}

	var replacement Node
	switch c := child.(type) {
	case nil:
		replacement = leaf
	case *LeafNode:
		if c.item.key == leaf.item.key {
			replacement = leaf
		} else {
			replacement = sm.split(id.ChildNodeID(branch), c, leaf)
		}
	case *InnerNode:
		replacement, err = sm.putAt(c, id.ChildNodeID(branch), leaf)
		if err != nil {
			return nil, err
		}
	}
	return n.withChild(sm.hasher, branch, replacement), nil
}

// split builds the inner node at id holding two leaves whose keys share the
// prefix id, adding levels until their keys diverge.
func (sm *SHAMap) split(id NodeID, a, b *LeafNode) *InnerNode {
	var children [BranchFactor]Node
	ba, bb := id.SelectBranch(a.item.key), id.SelectBranch(b.item.key)
	if ba != bb {
		children[ba], children[bb] = a, b
	} else {
		children[ba] = sm.split(id.ChildNodeID(ba), a, b)
	}
	return newInnerFromChildren(sm.hasher, children)
}

// Delete removes the item stored under key.
func (sm *SHAMap) Delete(key types.Hash256) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.checkMutableLocked(); err != nil {
		return err
	}
	replacement, err := sm.deleteAt(sm.root, RootNodeID, key)
	if err != nil {
		return err
	}
	sm.root = replacement.(*InnerNode)
	return nil
}

// deleteAt removes key below n. Except at the root, an inner node left with a
// single leaf child is replaced by that leaf and one left empty by nil.
func (sm *SHAMap) deleteAt(n *InnerNode, id NodeID, key types.Hash256) (Node, error) {
	branch := id.SelectBranch(key)
	child, err := sm.descend(n, branch)
	if err != nil {
		return nil, err
	}

	var replacement Node
	switch c := child.(type) {
	case nil:
		return nil, ErrItemNotFound
	case *LeafNode:
		if c.item.key != key {
			return nil, ErrItemNotFound
		}
	case *InnerNode:
		replacement, err = sm.deleteAt(c, id.ChildNodeID(branch), key)
		if err != nil {
			return nil, err
		}
	}

	updated := n.withChild(sm.hasher, branch, replacement)
	if id.IsRoot() {
		return updated, nil
	}

	switch updated.BranchCount() {
	case 0:
		return nil, nil
	case 1:
		for b := 0; b < BranchFactor; b++ {
			if updated.IsEmptyBranch(b) {
				continue
			}
			only, err := sm.descend(updated, b)
			if err != nil {
				return nil, err
			}
			if leaf, ok := only.(*LeafNode); ok {
				return leaf, nil
			}
		}
	}
	return updated, nil
}

// ForEach calls fn for every item in key order until fn returns false.
func (sm *SHAMap) ForEach(fn func(*Item) bool) error {
	root := sm.currentRoot()
	if root == nil {
		return ErrSyncing
	}
	_, err := sm.forEach(root, fn)
	return err
}

func (sm *SHAMap) forEach(n *InnerNode, fn func(*Item) bool) (bool, error) {
	for branch := 0; branch < BranchFactor; branch++ {
		child, err := sm.descend(n, branch)
		if err != nil {
			return false, err
		}
		switch c := child.(type) {
		case *LeafNode:
			if !fn(c.item) {
				return false, nil
			}
		case *InnerNode:
			if more, err := sm.forEach(c, fn); err != nil || !more {
				return false, err
			}
		}
	}
	return true, nil
}

// Len returns the number of items.
func (sm *SHAMap) Len() (int, error) {
	count := 0
	err := sm.ForEach(func(*Item) bool {
		count++
		return true
	})
	return count, err
}
