package shamap

import (
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/protocol"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// LeafKind identifies the payload layout of a leaf.
type LeafKind uint8

const (
	LeafAccountState LeafKind = iota + 1
	LeafTransaction
	LeafTransactionWithMeta
)

func (k LeafKind) String() string {
	switch k {
	case LeafAccountState:
		return "account_state"
	case LeafTransaction:
		return "transaction"
	case LeafTransactionWithMeta:
		return "transaction_with_meta"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// LeafNode holds one item.
type LeafNode struct {
	kind LeafKind
	item *Item
	hash types.Hash256
}

func newLeaf(h crypto.Hasher, kind LeafKind, item *Item) *LeafNode {
	l := &LeafNode{kind: kind, item: item}
	l.hash = h.Hash(l.prefixBytes())
	return l
}

// transactionKey is the key a plain transaction leaf is stored under.
func transactionKey(h crypto.Hasher, data []byte) types.Hash256 {
	return h.Hash(protocol.HashPrefixTransactionID[:], data)
}

func (l *LeafNode) Hash() types.Hash256 { return l.hash }
func (l *LeafNode) IsLeaf() bool        { return true }

// Kind returns the leaf kind.
func (l *LeafNode) Kind() LeafKind { return l.kind }

// Item returns the stored item.
func (l *LeafNode) Item() *Item { return l.item }

func (l *LeafNode) prefixBytes() []byte {
	data := l.item.data
	switch l.kind {
	case LeafTransaction:
		out := make([]byte, 0, 4+len(data))
		out = append(out, protocol.HashPrefixTransactionID[:]...)
		return append(out, data...)
	case LeafTransactionWithMeta:
		out := make([]byte, 0, 4+len(data)+32)
		out = append(out, protocol.HashPrefixTxNode[:]...)
		out = append(out, data...)
		return append(out, l.item.key[:]...)
	default:
		out := make([]byte, 0, 4+len(data)+32)
		out = append(out, protocol.HashPrefixLeafNode[:]...)
		out = append(out, data...)
		return append(out, l.item.key[:]...)
	}
}

func (l *LeafNode) wireBytes() []byte {
	data := l.item.data
	switch l.kind {
	case LeafTransaction:
		out := make([]byte, 0, len(data)+1)
		out = append(out, data...)
		return append(out, wireTypeTransaction)
	case LeafTransactionWithMeta:
		out := make([]byte, 0, len(data)+33)
		out = append(out, data...)
		out = append(out, l.item.key[:]...)
		return append(out, wireTypeTransactionWithMeta)
	default:
		out := make([]byte, 0, len(data)+33)
		out = append(out, data...)
		out = append(out, l.item.key[:]...)
		return append(out, wireTypeAccountState)
	}
}
