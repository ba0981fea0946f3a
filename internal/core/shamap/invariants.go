package shamap

import (
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// InvariantError describes a structural inconsistency at one node.
type InvariantError struct {
	NodeID      NodeID
	Description string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation at %s: %s", e.NodeID, e.Description)
}

// Invariants checks the part of the tree held in memory:
//   - every node hashes to the value its parent commits to
//   - no inner node below the root is empty or holds a single leaf
//   - every leaf key lies under its position
//
// It returns the first violation found.
func (sm *SHAMap) Invariants() error {
	root := sm.currentRoot()
	if root == nil {
		return nil
	}
	if root.Hash() != hashInner(sm.hasher, &root.hashes) {
		return &InvariantError{NodeID: RootNodeID, Description: "root hash mismatch"}
	}
	return sm.checkInner(root, RootNodeID)
}

func (sm *SHAMap) checkInner(n *InnerNode, id NodeID) error {
	if !id.IsRoot() {
		switch n.BranchCount() {
		case 0:
			return &InvariantError{NodeID: id, Description: "empty inner node"}
		case 1:
			for b := 0; b < BranchFactor; b++ {
				if _, ok := n.loadedChild(b).(*LeafNode); ok {
					return &InvariantError{NodeID: id, Description: "inner node with a single leaf"}
				}
			}
		}
	}

	for branch := 0; branch < BranchFactor; branch++ {
		child := n.loadedChild(branch)
		if child == nil {
			continue
		}
		childID := id.ChildNodeID(branch)
		if child.Hash() != n.hashes[branch] {
			return &InvariantError{NodeID: childID, Description: "child hash differs from parent commitment"}
		}
		switch c := child.(type) {
		case *LeafNode:
			if c.hash != sm.hasher.Hash(c.prefixBytes()) {
				return &InvariantError{NodeID: childID, Description: "leaf hash mismatch"}
			}
			if !childID.Contains(c.item.key) {
				return &InvariantError{NodeID: childID, Description: "leaf key outside its position"}
			}
		case *InnerNode:
			if c.hash != hashInner(sm.hasher, &c.hashes) {
				return &InvariantError{NodeID: childID, Description: "inner hash mismatch"}
			}
			if err := sm.checkInner(c, childID); err != nil {
				return err
			}
		}
	}
	return nil
}

// leafHashes returns every leaf hash in memory, for tests and diagnostics.
func (sm *SHAMap) leafHashes() map[types.Hash256]struct{} {
	out := make(map[types.Hash256]struct{})
	root := sm.currentRoot()
	if root == nil {
		return out
	}
	stack := []*InnerNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for b := 0; b < BranchFactor; b++ {
			switch c := n.loadedChild(b).(type) {
			case *LeafNode:
				out[c.hash] = struct{}{}
			case *InnerNode:
				stack = append(stack, c)
			}
		}
	}
	return out
}
