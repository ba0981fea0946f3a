package shamap

import "github.com/LeJamon/goXRPLsync/internal/types"

// Family provides access to a persistent store for backed SHAMap instances.
// Each SHAMap fetches and decodes nodes itself, so a Family only moves bytes.
type Family interface {
	// Fetch retrieves a node's storage bytes by hash.
	// Returns nil, nil if the node is not found.
	Fetch(hash types.Hash256) ([]byte, error)

	// StoreBatch persists a batch of serialized nodes.
	StoreBatch(entries []FlushEntry) error
}

// FlushEntry is one node in storage form.
type FlushEntry struct {
	Hash types.Hash256
	Data []byte
}

// flushBatchSize bounds the entries handed to StoreBatch at once.
const flushBatchSize = 256

// Flush writes every node held in memory to family and returns how many were
// written. Nodes that were paged in are written again, which is harmless.
func (sm *SHAMap) Flush(family Family) (int, error) {
	root := sm.currentRoot()
	if root == nil || root.IsEmpty() {
		return 0, nil
	}

	written := 0
	batch := make([]FlushEntry, 0, flushBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := family.StoreBatch(batch); err != nil {
			return err
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	stack := []Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		batch = append(batch, FlushEntry{Hash: node.Hash(), Data: node.prefixBytes()})
		if len(batch) == flushBatchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}

		if inner, ok := node.(*InnerNode); ok {
			for branch := 0; branch < BranchFactor; branch++ {
				if child := inner.loadedChild(branch); child != nil {
					stack = append(stack, child)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}
