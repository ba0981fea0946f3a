package shamap

import (
	"testing"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore"
	"github.com/stretchr/testify/require"
)

func TestNodeStoreFamilyPebble(t *testing.T) {
	cfg := nodestore.DefaultConfig()
	cfg.Path = t.TempDir()
	db, err := nodestore.Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	family := NewNodeStoreFamily(db, nodestore.NodeAccount)
	sm := buildStateMap(t, 64)
	require.NoError(t, sm.SetImmutable())
	_, err = sm.Flush(family)
	require.NoError(t, err)

	// Stored bytes hash to their key.
	root, err := family.Fetch(sm.Hash())
	require.NoError(t, err)
	require.Equal(t, sm.Hash(), crypto.Sha512Half(root))

	backed, err := NewBacked(TypeState, sm.Hash(), family)
	require.NoError(t, err)
	n, err := backed.Len()
	require.NoError(t, err)
	require.Equal(t, 64, n)

	missing, err := family.Fetch(testKey(999))
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestSyncIntoNodeStoreFamily(t *testing.T) {
	source := buildStateMap(t, 40)
	require.NoError(t, source.SetImmutable())

	family, err := NewMemoryNodeStoreFamily()
	require.NoError(t, err)

	target := NewSyncing(TypeState, source.Hash(), WithFamily(family))
	for _, nd := range allNodes(t, source) {
		target.AddNode(nd.ID, nd.Data, nil)
	}
	require.True(t, target.IsComplete())
	require.NoError(t, target.SetImmutable())

	_, err = target.Flush(family)
	require.NoError(t, err)
	reloaded, err := NewBacked(TypeState, source.Hash(), family)
	require.NoError(t, err)
	require.Equal(t, source.Hash(), reloaded.Hash())
}
