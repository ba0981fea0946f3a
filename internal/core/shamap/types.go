// Package shamap implements the SHAMap, a Merkle radix tree keyed by 256-bit
// hashes that holds one ledger's state or transaction set.
//
// Nodes are immutable once built and identified by their hash. Put and Delete
// copy the modified path and share every untouched subtree with the previous
// version, so snapshots are O(1). A map may also be built incrementally from
// untrusted peer data with AddNode, which verifies every node against the hash
// its parent (or the expected root) commits to.
package shamap

import (
	"errors"
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

const (
	// BranchFactor is the number of children of an inner node.
	BranchFactor = 16
	// MaxDepth is the depth of a leaf whose position uses every key nibble.
	MaxDepth = 64

	defaultMaxPending = 1 << 14
)

// EmptyRootHash is the root hash of a map without items.
var EmptyRootHash = types.ZeroHash

var (
	ErrImmutable        = errors.New("cannot modify immutable SHAMap")
	ErrSyncing          = errors.New("operation not allowed while syncing")
	ErrIncomplete       = errors.New("map is missing nodes")
	ErrItemNotFound     = errors.New("item not found")
	ErrNodeNotFound     = errors.New("node not found")
	ErrMissingNode      = errors.New("referenced node not available")
	ErrNodeHashMismatch = errors.New("node hash does not match expected")
	ErrInvalidNodeData  = errors.New("invalid node data")
	ErrWrongLeafType    = errors.New("leaf type does not match map type")
	ErrInvalidDepth     = errors.New("invalid depth parameter")
)

// State defines the state of the SHAMap
type State int

const (
	StateModifying State = iota
	StateImmutable
	StateSyncing
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateModifying:
		return "modifying"
	case StateImmutable:
		return "immutable"
	case StateSyncing:
		return "syncing"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Type defines the SHAMap type
type Type int

const (
	TypeTransaction Type = iota
	TypeState
)

func (t Type) String() string {
	switch t {
	case TypeTransaction:
		return "transaction"
	case TypeState:
		return "state"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// defaultLeafKind is the kind Put stores items as.
func (t Type) defaultLeafKind() LeafKind {
	if t == TypeState {
		return LeafAccountState
	}
	return LeafTransactionWithMeta
}

func (t Type) accepts(kind LeafKind) bool {
	if t == TypeState {
		return kind == LeafAccountState
	}
	return kind == LeafTransaction || kind == LeafTransactionWithMeta
}

// Option configures a SHAMap.
type Option func(*SHAMap)

// WithHasher overrides the hash function used for node hashes.
func WithHasher(h crypto.Hasher) Option {
	return func(sm *SHAMap) { sm.hasher = h }
}

// WithFamily pages absent nodes in from f.
func WithFamily(f Family) Option {
	return func(sm *SHAMap) { sm.family = f }
}

// WithMaxPending bounds the number of nodes a syncing map holds while their
// parent is still unknown.
func WithMaxPending(n int) Option {
	return func(sm *SHAMap) {
		if n >= 0 {
			sm.maxPending = n
		}
	}
}
