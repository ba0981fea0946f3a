package shamap

import (
	"testing"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/stretchr/testify/require"
)

func TestNodeID(t *testing.T) {
	key := hexToKey(t, "b92891fe4ef6cee585fdc6fda1e09eb4d386363158ec3321b8123e5a772c6ca8")

	id := NewNodeID(3, key)
	require.Equal(t, uint8(3), id.Depth)
	require.Equal(t, byte(0xB9), id.ID[0])
	require.Equal(t, byte(0x20), id.ID[1])
	require.True(t, id.Contains(key))
	require.Equal(t, 8, id.SelectBranch(key))

	child := id.ChildNodeID(8)
	require.Equal(t, NewNodeID(4, key), child)

	parsed, err := NodeIDFromRawBytes(child.RawBytes())
	require.NoError(t, err)
	require.Equal(t, child, parsed)

	_, err = NodeIDFromRawBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidNodeData)

	raw := child.RawBytes()
	raw[31] = 0x01
	_, err = NodeIDFromRawBytes(raw)
	require.ErrorIs(t, err, ErrInvalidNodeData)

	raw = RootNodeID.RawBytes()
	raw[32] = MaxDepth + 1
	_, err = NodeIDFromRawBytes(raw)
	require.ErrorIs(t, err, ErrInvalidNodeData)

	require.True(t, RootNodeID.Contains(key))
	require.Equal(t, "NodeID(root)", RootNodeID.String())
}

func TestInnerWireForms(t *testing.T) {
	h := crypto.DefaultHasher

	var sparse [BranchFactor]types.Hash256
	sparse[3] = testKey(3)
	sparse[9] = testKey(9)
	compressed := newInnerFromHashes(h, sparse)
	wire := SerializeNode(compressed)
	require.Len(t, wire, 2*33+1)
	require.Equal(t, wireTypeCompressedInner, wire[len(wire)-1])

	decoded, err := DeserializeNode(wire, h)
	require.NoError(t, err)
	require.Equal(t, compressed.Hash(), decoded.Hash())

	var dense [BranchFactor]types.Hash256
	for i := range dense {
		dense[i] = testKey(i)
	}
	full := newInnerFromHashes(h, dense)
	wire = SerializeNode(full)
	require.Len(t, wire, BranchFactor*32+1)
	require.Equal(t, wireTypeInner, wire[len(wire)-1])

	decoded, err = DeserializeNode(wire, h)
	require.NoError(t, err)
	require.Equal(t, full.Hash(), decoded.Hash())
}

func TestLeafWireForms(t *testing.T) {
	h := crypto.DefaultHasher
	data := []byte("payload")

	state := newLeaf(h, LeafAccountState, NewItem(testKey(1), data))
	decoded, err := DeserializeNode(SerializeNode(state), h)
	require.NoError(t, err)
	require.Equal(t, state.Hash(), decoded.Hash())
	require.True(t, decoded.(*LeafNode).Item().Equal(state.Item()))

	meta := newLeaf(h, LeafTransactionWithMeta, NewItem(testKey(2), data))
	decoded, err = DeserializeNode(SerializeNode(meta), h)
	require.NoError(t, err)
	require.Equal(t, LeafTransactionWithMeta, decoded.(*LeafNode).Kind())
	require.Equal(t, meta.Hash(), decoded.Hash())

	tx := newLeaf(h, LeafTransaction, NewItem(transactionKey(h, data), data))
	decoded, err = DeserializeNode(SerializeNode(tx), h)
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), decoded.Hash())
	require.Equal(t, tx.Item().Key(), decoded.(*LeafNode).Item().Key())

	// Stored form round trip.
	for _, n := range []Node{state, meta, tx} {
		stored, err := decodePrefixed(n.prefixBytes(), h)
		require.NoError(t, err)
		require.Equal(t, n.Hash(), stored.Hash())
	}
}

func TestDeserializeRejects(t *testing.T) {
	h := crypto.DefaultHasher
	key := testKey(1)

	dup := append(append(append([]byte{}, key[:]...), 4), append(key[:], 4)...)
	zero := append(make([]byte, 32), 2)

	cases := map[string][]byte{
		"empty":             nil,
		"unknown type":      {1, 2, 3, 7},
		"short full inner":  append(make([]byte, 100), wireTypeInner),
		"ragged compressed": append(make([]byte, 40), wireTypeCompressedInner),
		"branch overflow":   append(append(key[:], 16), wireTypeCompressedInner),
		"duplicate branch":  append(dup, wireTypeCompressedInner),
		"zero child hash":   append(zero, wireTypeCompressedInner),
		"short state leaf":  append(make([]byte, 10), wireTypeAccountState),
		"empty transaction": {wireTypeTransaction},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DeserializeNode(data, h)
			require.ErrorIs(t, err, ErrInvalidNodeData)
		})
	}

	_, err := decodePrefixed([]byte("XYZ\x00abc"), h)
	require.ErrorIs(t, err, ErrInvalidNodeData)
}

func TestGetNodeAndFat(t *testing.T) {
	sm := buildStateMap(t, 100)

	rootBytes, err := sm.GetNode(RootNodeID)
	require.NoError(t, err)
	root, err := DeserializeNode(rootBytes, crypto.DefaultHasher)
	require.NoError(t, err)
	require.Equal(t, sm.Hash(), root.Hash())

	onlyRoot, err := sm.GetNodeFat(RootNodeID, 0)
	require.NoError(t, err)
	require.Len(t, onlyRoot, 1)

	withChildren, err := sm.GetNodeFat(RootNodeID, 1)
	require.NoError(t, err)
	require.Len(t, withChildren, 1+root.(*InnerNode).BranchCount())
	for _, n := range withChildren[1:] {
		require.Equal(t, uint8(1), n.ID.Depth)
	}

	_, err = sm.GetNodeFat(RootNodeID, -1)
	require.ErrorIs(t, err, ErrInvalidDepth)

	_, err = sm.GetNode(NewNodeID(MaxDepth, testKey(5000)))
	require.ErrorIs(t, err, ErrNodeNotFound)
}
