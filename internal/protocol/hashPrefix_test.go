package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPrefixesAreDistinct(t *testing.T) {
	prefixes := [][4]byte{
		HashPrefixTransactionID,
		HashPrefixTxNode,
		HashPrefixLeafNode,
		HashPrefixInnerNode,
		HashPrefixLedgerMaster,
		HashPrefixValidation,
	}
	seen := make(map[[4]byte]bool)
	for _, p := range prefixes {
		require.Zero(t, p[3])
		require.False(t, seen[p], "duplicate prefix %q", p[:3])
		seen[p] = true
	}
	require.Equal(t, [4]byte{'M', 'I', 'N', 0}, HashPrefixInnerNode)
}
