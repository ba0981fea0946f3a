package shamap

import (
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// NodeIDSize is the size of a NodeID on the wire: 32-byte ID then depth.
const NodeIDSize = 33

// NodeID represents a node's position in the SHAMap.
type NodeID struct {
	Depth uint8         // number of key nibbles that are significant
	ID    types.Hash256 // key prefix, nibbles past Depth are zero
}

// RootNodeID is the position of the root node.
var RootNodeID = NodeID{}

// NewNodeID returns the position at depth on the path to key.
func NewNodeID(depth uint8, key types.Hash256) NodeID {
	if depth > MaxDepth {
		depth = MaxDepth
	}
	id := NodeID{Depth: depth}
	full := depth / 2
	copy(id.ID[:full], key[:full])
	if depth%2 == 1 {
		id.ID[full] = key[full] & 0xF0
	}
	return id
}

// NodeIDFromRawBytes parses the 33-byte wire form of a NodeID.
func NodeIDFromRawBytes(data []byte) (NodeID, error) {
	if len(data) != NodeIDSize {
		return NodeID{}, fmt.Errorf("%w: node id length %d", ErrInvalidNodeData, len(data))
	}
	var key types.Hash256
	copy(key[:], data[:32])
	depth := data[32]
	if depth > MaxDepth {
		return NodeID{}, fmt.Errorf("%w: node id depth %d", ErrInvalidNodeData, depth)
	}
	id := NewNodeID(depth, key)
	if id.ID != key {
		return NodeID{}, fmt.Errorf("%w: node id has bits below depth", ErrInvalidNodeData)
	}
	return id, nil
}

// RawBytes returns the wire format: 32-byte ID + 1-byte depth
func (n NodeID) RawBytes() []byte {
	out := make([]byte, NodeIDSize)
	copy(out[:32], n.ID[:])
	out[32] = n.Depth
	return out
}

// IsRoot returns true if this node is the root.
func (n NodeID) IsRoot() bool {
	return n.Depth == 0
}

// SelectBranch returns the branch of this node on the path to key.
func (n NodeID) SelectBranch(key types.Hash256) int {
	return nibble(key, n.Depth)
}

// ChildNodeID returns the position of the given branch below n.
func (n NodeID) ChildNodeID(branch int) NodeID {
	if branch < 0 || branch >= BranchFactor || n.Depth >= MaxDepth {
		panic(fmt.Sprintf("shamap: invalid child %d of %s", branch, n))
	}
	child := NodeID{Depth: n.Depth + 1, ID: n.ID}
	i := n.Depth / 2
	if n.Depth%2 == 0 {
		child.ID[i] = byte(branch) << 4
	} else {
		child.ID[i] |= byte(branch)
	}
	return child
}

// Contains reports whether key lies in the subtree rooted at n.
func (n NodeID) Contains(key types.Hash256) bool {
	return NewNodeID(n.Depth, key) == n
}

func (n NodeID) String() string {
	if n.IsRoot() {
		return "NodeID(root)"
	}
	return fmt.Sprintf("NodeID(%d:%x)", n.Depth, n.ID[:(n.Depth+1)/2])
}

func nibble(key types.Hash256, depth uint8) int {
	b := key[depth/2]
	if depth%2 == 0 {
		return int(b >> 4)
	}
	return int(b & 0x0F)
}
