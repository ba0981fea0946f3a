package shamap

import "github.com/LeJamon/goXRPLsync/internal/types"

// Wire type bytes, appended as the last byte of a serialized node.
const (
	wireTypeTransaction         byte = 0
	wireTypeAccountState        byte = 1
	wireTypeInner               byte = 2
	wireTypeCompressedInner     byte = 3
	wireTypeTransactionWithMeta byte = 4
)

// Node is an inner node or a leaf. The hash of a node never changes.
type Node interface {
	Hash() types.Hash256
	IsLeaf() bool

	// wireBytes is the peer wire form, ending with a type byte.
	wireBytes() []byte
	// prefixBytes is the storage form: hash prefix followed by the content.
	// The node hash is the hash of these bytes.
	prefixBytes() []byte
}
