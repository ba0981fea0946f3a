package shamap

import (
	"bytes"
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/protocol"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// NodeData is a node position and its wire bytes, as sent to peers.
type NodeData struct {
	ID   NodeID
	Data []byte
}

func (n NodeData) String() string {
	return fmt.Sprintf("NodeData(%s, size=%d)", n.ID, len(n.Data))
}

// SerializeNode returns the wire form of node.
func SerializeNode(node Node) []byte {
	return node.wireBytes()
}

// DeserializeNode parses the wire form of a node and computes its hash with h.
// Any structural problem is reported as ErrInvalidNodeData.
func DeserializeNode(data []byte, h crypto.Hasher) (Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidNodeData)
	}
	body, wireType := data[:len(data)-1], data[len(data)-1]

	switch wireType {
	case wireTypeInner:
		if len(body) != BranchFactor*32 {
			return nil, fmt.Errorf("%w: full inner node size %d", ErrInvalidNodeData, len(body))
		}
		var hashes [BranchFactor]types.Hash256
		for i := range hashes {
			copy(hashes[i][:], body[i*32:])
		}
		return newInnerFromHashes(h, hashes), nil

	case wireTypeCompressedInner:
		if len(body)%33 != 0 {
			return nil, fmt.Errorf("%w: compressed inner node size %d", ErrInvalidNodeData, len(body))
		}
		var hashes [BranchFactor]types.Hash256
		for off := 0; off < len(body); off += 33 {
			branch := int(body[off+32])
			if branch >= BranchFactor {
				return nil, fmt.Errorf("%w: branch %d", ErrInvalidNodeData, branch)
			}
			if !hashes[branch].IsZero() {
				return nil, fmt.Errorf("%w: duplicate branch %d", ErrInvalidNodeData, branch)
			}
			copy(hashes[branch][:], body[off:off+32])
			if hashes[branch].IsZero() {
				return nil, fmt.Errorf("%w: zero hash in branch %d", ErrInvalidNodeData, branch)
			}
		}
		return newInnerFromHashes(h, hashes), nil

	case wireTypeAccountState, wireTypeTransactionWithMeta:
		if len(body) < 32 {
			return nil, fmt.Errorf("%w: leaf too short", ErrInvalidNodeData)
		}
		key, err := types.Hash256FromBytes(body[len(body)-32:])
		if err != nil {
			return nil, err
		}
		kind := LeafAccountState
		if wireType == wireTypeTransactionWithMeta {
			kind = LeafTransactionWithMeta
		}
		return newLeaf(h, kind, NewItem(key, body[:len(body)-32])), nil

	case wireTypeTransaction:
		if len(body) == 0 {
			return nil, fmt.Errorf("%w: empty transaction", ErrInvalidNodeData)
		}
		return newLeaf(h, LeafTransaction, NewItem(transactionKey(h, body), body)), nil

	default:
		return nil, fmt.Errorf("%w: unknown wire type %d", ErrInvalidNodeData, wireType)
	}
}

// decodePrefixed parses the storage form written by Flush.
func decodePrefixed(data []byte, h crypto.Hasher) (Node, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: stored node too short", ErrInvalidNodeData)
	}
	prefix, body := data[:4], data[4:]

	switch {
	case bytes.Equal(prefix, protocol.HashPrefixInnerNode[:]):
		if len(body) != BranchFactor*32 {
			return nil, fmt.Errorf("%w: stored inner node size %d", ErrInvalidNodeData, len(body))
		}
		var hashes [BranchFactor]types.Hash256
		for i := range hashes {
			copy(hashes[i][:], body[i*32:])
		}
		return newInnerFromHashes(h, hashes), nil

	case bytes.Equal(prefix, protocol.HashPrefixLeafNode[:]),
		bytes.Equal(prefix, protocol.HashPrefixTxNode[:]):
		if len(body) < 32 {
			return nil, fmt.Errorf("%w: stored leaf too short", ErrInvalidNodeData)
		}
		var key types.Hash256
		copy(key[:], body[len(body)-32:])
		kind := LeafAccountState
		if bytes.Equal(prefix, protocol.HashPrefixTxNode[:]) {
			kind = LeafTransactionWithMeta
		}
		return newLeaf(h, kind, NewItem(key, body[:len(body)-32])), nil

	case bytes.Equal(prefix, protocol.HashPrefixTransactionID[:]):
		if len(body) == 0 {
			return nil, fmt.Errorf("%w: empty stored transaction", ErrInvalidNodeData)
		}
		return newLeaf(h, LeafTransaction, NewItem(transactionKey(h, body), body)), nil

	default:
		return nil, fmt.Errorf("%w: unknown prefix %x", ErrInvalidNodeData, prefix)
	}
}

// GetNode returns the wire bytes of the node at path.
func (sm *SHAMap) GetNode(path NodeID) ([]byte, error) {
	node, err := sm.nodeAt(path)
	if err != nil {
		return nil, err
	}
	return node.wireBytes(), nil
}

// GetNodeFat returns the node at path followed by its descendants down to
// depth further levels, in breadth-first order. Descendants that are not
// available locally are skipped.
func (sm *SHAMap) GetNodeFat(path NodeID, depth int) ([]NodeData, error) {
	if depth < 0 {
		return nil, ErrInvalidDepth
	}
	node, err := sm.nodeAt(path)
	if err != nil {
		return nil, err
	}

	type workItem struct {
		node  Node
		id    NodeID
		level int
	}

	var result []NodeData
	queue := []workItem{{node: node, id: path}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		result = append(result, NodeData{ID: item.id, Data: item.node.wireBytes()})

		inner, ok := item.node.(*InnerNode)
		if !ok || item.level >= depth {
			continue
		}
		for branch := 0; branch < BranchFactor; branch++ {
			if inner.IsEmptyBranch(branch) {
				continue
			}
			child, err := sm.descend(inner, branch)
			if err != nil || child == nil {
				continue
			}
			queue = append(queue, workItem{node: child, id: item.id.ChildNodeID(branch), level: item.level + 1})
		}
	}
	return result, nil
}

// nodeAt walks from the root to path, paging nodes in as needed.
func (sm *SHAMap) nodeAt(path NodeID) (Node, error) {
	root := sm.currentRoot()
	if root == nil {
		return nil, ErrNodeNotFound
	}
	var node Node = root
	for d := uint8(0); d < path.Depth; d++ {
		inner, ok := node.(*InnerNode)
		if !ok {
			return nil, ErrNodeNotFound
		}
		child, err := sm.descend(inner, nibble(path.ID, d))
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, ErrNodeNotFound
		}
		node = child
	}
	return node, nil
}
