package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/storage/ledgerindex"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLedger(t *testing.T, seq uint32) *ledger.Ledger {
	t.Helper()
	sm := shamap.New(shamap.TypeState)
	for i := 0; i < 8; i++ {
		key := crypto.Sha512Half([]byte(fmt.Sprintf("%d/%d", seq, i)))
		require.NoError(t, sm.Put(key, []byte(fmt.Sprintf("value %d", i))))
	}
	require.NoError(t, sm.SetImmutable())
	l, err := ledger.New(ledger.Header{
		Seq:        seq,
		ParentHash: crypto.Sha512Half([]byte(fmt.Sprintf("parent %d", seq))),
		CloseTime:  time.Unix(1_700_000_000+int64(seq), 0).UTC(),
	}, sm)
	require.NoError(t, err)
	return l
}

func TestRangeSet(t *testing.T) {
	var s RangeSet
	assert.Equal(t, "empty", s.String())

	s.AddRange(10, 12)
	s.Add(20)
	s.Add(14)
	assert.Equal(t, "10-12,14,20", s.String())

	s.Add(13)
	assert.Equal(t, "10-14,20", s.String())

	s.AddRange(5, 25)
	assert.Equal(t, "5-25", s.String())

	s.AddRange(30, 29)
	assert.Equal(t, uint64(21), s.Count())

	s.Add(0)
	s.Add(^uint32(0))
	assert.True(t, s.Contains(0))
	assert.True(t, s.Contains(^uint32(0)))
	assert.False(t, s.Contains(4))

	lo, hi, ok := s.Bounds()
	require.True(t, ok)
	assert.Equal(t, uint32(0), lo)
	assert.Equal(t, ^uint32(0), hi)

	assert.Equal(t, []uint32{1, 2, 3, 4}, s.Missing(0, 6))
}

func TestCacheOnly(t *testing.T) {
	h, err := New(Config{CacheSize: 2}, zerolog.Nop())
	require.NoError(t, err)

	var announced []uint32
	h.Subscribe(func(l *ledger.Ledger) { announced = append(announced, l.Seq()) })

	l1, l2, l3 := makeLedger(t, 1), makeLedger(t, 2), makeLedger(t, 3)
	for _, l := range []*ledger.Ledger{l1, l2, l3} {
		require.NoError(t, h.StoreLedger(l))
	}
	assert.Equal(t, []uint32{1, 2, 3}, announced)

	got, ok := h.GetLedgerByHash(l3.Hash())
	require.True(t, ok)
	assert.Same(t, l3, got)

	// Evicted from the bounded cache with nothing behind it.
	assert.False(t, h.HasLedger(l1.Hash()))
	_, ok = h.GetLedgerBySeq(1)
	assert.False(t, ok)

	got, ok = h.GetLedgerBySeq(2)
	require.True(t, ok)
	assert.Equal(t, l2.Hash(), got.Hash())

	lo, hi, ok := h.CompleteRange()
	require.True(t, ok)
	assert.Equal(t, uint32(1), lo)
	assert.Equal(t, uint32(3), hi)
	assert.Equal(t, []uint32{4}, h.Missing(1, 4))

	stats := h.Stats()
	assert.Equal(t, 2, stats.Cached)
	assert.Equal(t, "1-3", stats.Complete)
}

func TestColdLoadThroughIndex(t *testing.T) {
	idx, err := ledgerindex.Open(context.Background(), ledgerindex.MemoryConfig())
	require.NoError(t, err)
	defer idx.Close()
	family := shamap.NewMemoryFamily()

	h, err := New(Config{CacheSize: 1, Family: family, Index: idx}, zerolog.Nop())
	require.NoError(t, err)

	l1, l2 := makeLedger(t, 7), makeLedger(t, 8)
	require.NoError(t, h.StoreLedger(l1))
	require.NoError(t, h.StoreLedger(l2))

	// l1 fell out of the cache but is loadable.
	assert.True(t, h.HasLedger(l1.Hash()))
	got, ok := h.GetLedgerBySeq(7)
	require.True(t, ok)
	assert.Equal(t, l1.Hash(), got.Hash())
	assert.Equal(t, l1.ParentHash(), got.ParentHash())
	assert.False(t, got.IsValidated())

	n, err := got.StateMap().Len()
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	hash, ok := h.GetHashBySeq(8)
	require.True(t, ok)
	assert.Equal(t, l2.Hash(), hash)

	_, ok = h.GetLedgerByHash(types.Hash256{1})
	assert.False(t, ok)
	assert.GreaterOrEqual(t, h.Stats().Loads, uint64(1))
}

func TestValidatedFlagSurvivesEviction(t *testing.T) {
	idx, err := ledgerindex.Open(context.Background(), ledgerindex.MemoryConfig())
	require.NoError(t, err)
	defer idx.Close()

	h, err := New(Config{CacheSize: 1, Family: shamap.NewMemoryFamily(), Index: idx}, zerolog.Nop())
	require.NoError(t, err)

	l1, l2, l3 := makeLedger(t, 7), makeLedger(t, 8), makeLedger(t, 9)
	require.NoError(t, h.StoreLedger(l1))
	require.True(t, h.MarkValidated(l1.Hash()))
	assert.True(t, l1.IsValidated())
	require.NoError(t, h.StoreLedger(l2))

	got, ok := h.GetLedgerBySeq(7)
	require.True(t, ok)
	assert.NotSame(t, l1, got)
	assert.True(t, got.IsValidated())

	l3.MarkValidated()
	require.NoError(t, h.StoreLedger(l3))
	require.NoError(t, h.StoreLedger(l2))
	got, ok = h.GetLedgerBySeq(9)
	require.True(t, ok)
	assert.True(t, got.IsValidated())

	got, ok = h.GetLedgerBySeq(8)
	require.True(t, ok)
	assert.False(t, got.IsValidated())

	assert.False(t, h.MarkValidated(types.Hash256{1}))
}

func TestStoreLedgerReportsIndexFailure(t *testing.T) {
	idx, err := ledgerindex.Open(context.Background(), ledgerindex.MemoryConfig())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	h, err := New(Config{Index: idx}, zerolog.Nop())
	require.NoError(t, err)

	l := makeLedger(t, 3)
	err = h.StoreLedger(l)
	require.ErrorIs(t, err, ledgerindex.ErrClosed)

	// Still cached and announced as complete.
	assert.True(t, h.HasLedger(l.Hash()))
}
