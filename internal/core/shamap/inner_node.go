package shamap

import (
	"sync"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/protocol"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// compressedBranchLimit is the branch count below which an inner node is
// sent in compressed form.
const compressedBranchLimit = 12

// InnerNode has up to 16 children selected by key nibble. Its child hashes
// are fixed at construction; the children slice is a cache of the nodes
// those hashes commit to and may be filled in later.
type InnerNode struct {
	hash   types.Hash256
	hashes [BranchFactor]types.Hash256

	mu       sync.RWMutex
	children [BranchFactor]Node
}

func newInnerFromHashes(h crypto.Hasher, hashes [BranchFactor]types.Hash256) *InnerNode {
	n := &InnerNode{hashes: hashes}
	n.hash = hashInner(h, &hashes)
	return n
}

func newInnerFromChildren(h crypto.Hasher, children [BranchFactor]Node) *InnerNode {
	n := &InnerNode{children: children}
	for i, c := range children {
		if c != nil {
			n.hashes[i] = c.Hash()
		}
	}
	n.hash = hashInner(h, &n.hashes)
	return n
}

func hashInner(h crypto.Hasher, hashes *[BranchFactor]types.Hash256) types.Hash256 {
	empty := true
	for i := range hashes {
		if !hashes[i].IsZero() {
			empty = false
			break
		}
	}
	if empty {
		return EmptyRootHash
	}
	return h.Hash(innerPrefixBytes(hashes))
}

func innerPrefixBytes(hashes *[BranchFactor]types.Hash256) []byte {
	out := make([]byte, 0, 4+BranchFactor*32)
	out = append(out, protocol.HashPrefixInnerNode[:]...)
	for i := range hashes {
		out = append(out, hashes[i][:]...)
	}
	return out
}

func (n *InnerNode) Hash() types.Hash256 { return n.hash }
func (n *InnerNode) IsLeaf() bool        { return false }

// ChildHash returns the hash committed to for branch, zero if empty.
func (n *InnerNode) ChildHash(branch int) types.Hash256 {
	return n.hashes[branch]
}

// IsEmptyBranch reports whether branch has no child.
func (n *InnerNode) IsEmptyBranch(branch int) bool {
	return n.hashes[branch].IsZero()
}

// BranchCount returns the number of non-empty branches.
func (n *InnerNode) BranchCount() int {
	count := 0
	for i := range n.hashes {
		if !n.hashes[i].IsZero() {
			count++
		}
	}
	return count
}

// IsEmpty reports whether the node has no children at all.
func (n *InnerNode) IsEmpty() bool {
	return n.hash.IsZero()
}

// loadedChild returns the cached child for branch, or nil.
func (n *InnerNode) loadedChild(branch int) Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.children[branch]
}

// canonicalize caches child in branch unless another goroutine got there
// first, and returns whichever node is cached. The caller has verified that
// child hashes to n.hashes[branch].
func (n *InnerNode) canonicalize(branch int, child Node) Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing := n.children[branch]; existing != nil {
		return existing
	}
	n.children[branch] = child
	return child
}

// withChild returns a copy of n with branch set to child, which may be nil.
func (n *InnerNode) withChild(h crypto.Hasher, branch int, child Node) *InnerNode {
	n.mu.RLock()
	children := n.children
	n.mu.RUnlock()

	out := &InnerNode{hashes: n.hashes, children: children}
	out.children[branch] = child
	if child == nil {
		out.hashes[branch] = types.ZeroHash
	} else {
		out.hashes[branch] = child.Hash()
	}
	out.hash = hashInner(h, &out.hashes)
	return out
}

func (n *InnerNode) prefixBytes() []byte {
	return innerPrefixBytes(&n.hashes)
}

func (n *InnerNode) wireBytes() []byte {
	count := n.BranchCount()
	if count < compressedBranchLimit {
		out := make([]byte, 0, count*33+1)
		for i := range n.hashes {
			if n.hashes[i].IsZero() {
				continue
			}
			out = append(out, n.hashes[i][:]...)
			out = append(out, byte(i))
		}
		return append(out, wireTypeCompressedInner)
	}
	out := make([]byte, 0, BranchFactor*32+1)
	for i := range n.hashes {
		out = append(out, n.hashes[i][:]...)
	}
	return append(out, wireTypeInner)
}
