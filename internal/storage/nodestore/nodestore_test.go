package nodestore

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(i int) types.Hash256 {
	var h types.Hash256
	copy(h[:], fmt.Sprintf("node-%027d", i))
	return h
}

func testNode(i int, size int) *Node {
	return &Node{
		Type:      NodeAccount,
		Hash:      testHash(i),
		Data:      bytes.Repeat([]byte{byte(i)}, size),
		LedgerSeq: uint32(i),
	}
}

func openBackend(t *testing.T, name string) Backend {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = name
	cfg.Path = t.TempDir()
	b, err := CreateBackend(name, cfg)
	require.NoError(t, err)
	require.NoError(t, b.Open(true))
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBackends(t *testing.T) {
	for _, name := range AvailableBackends() {
		t.Run(name, func(t *testing.T) {
			b := openBackend(t, name)
			assert.True(t, b.IsOpen())

			_, status := b.Fetch(testHash(1))
			assert.Equal(t, NotFound, status)

			small, large := testNode(1, 16), testNode(2, 4096)
			require.Equal(t, OK, b.Store(small))
			require.Equal(t, OK, b.StoreBatch([]*Node{large, testNode(3, 200)}))
			require.Equal(t, OK, b.Sync())

			for _, want := range []*Node{small, large} {
				got, status := b.Fetch(want.Hash)
				require.Equal(t, OK, status)
				assert.Equal(t, want.Data, got.Data)
				assert.Equal(t, want.Type, got.Type)
				assert.Equal(t, want.LedgerSeq, got.LedgerSeq)
			}

			seen := 0
			require.NoError(t, b.ForEach(func(*Node) error { seen++; return nil }))
			assert.Equal(t, 3, seen)

			require.NoError(t, b.Close())
			assert.False(t, b.IsOpen())
			_, status = b.Fetch(small.Hash)
			assert.Equal(t, BackendError, status)
		})
	}
}

func TestBackendReopenKeepsData(t *testing.T) {
	for _, name := range []string{"pebble", "leveldb", "bbolt"} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Path = t.TempDir()
			b, err := CreateBackend(name, cfg)
			require.NoError(t, err)
			require.NoError(t, b.Open(true))
			require.Equal(t, OK, b.Store(testNode(7, 1000)))
			require.NoError(t, b.Close())

			require.NoError(t, b.Open(false))
			defer b.Close()
			got, status := b.Fetch(testHash(7))
			require.Equal(t, OK, status)
			assert.Len(t, got.Data, 1000)
		})
	}
}

func TestEncodingCompressesLargeValues(t *testing.T) {
	lz, err := newCodec("lz4")
	require.NoError(t, err)
	raw, err := newCodec("none")
	require.NoError(t, err)

	node := testNode(5, 4096)
	compressed, err := lz.encode(node)
	require.NoError(t, err)
	plain, err := raw.encode(node)
	require.NoError(t, err)

	assert.Equal(t, codecLZ4, compressed[0])
	assert.Equal(t, codecRaw, plain[0])
	assert.Less(t, len(compressed), len(plain))

	for _, value := range [][]byte{compressed, plain} {
		got, err := decodeNode(node.Hash, value)
		require.NoError(t, err)
		assert.Equal(t, node.Data, got.Data)
		assert.Equal(t, node.LedgerSeq, got.LedgerSeq)
	}

	small, err := lz.encode(testNode(6, 10))
	require.NoError(t, err)
	assert.Equal(t, codecRaw, small[0])
}

func TestDecodeRejectsCorruptValues(t *testing.T) {
	_, err := decodeNode(testHash(1), []byte{0, 1})
	assert.ErrorIs(t, err, ErrDataCorrupt)

	_, err = decodeNode(testHash(1), []byte{9, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrDataCorrupt)

	_, err = decodeNode(testHash(1), []byte{codecLZ4, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrDataCorrupt)
}

func TestNegativeCacheExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	nc := NewNegativeCache(2, time.Minute)
	nc.now = func() time.Time { return now }

	nc.MarkMissing(testHash(1))
	assert.True(t, nc.IsMissing(testHash(1)))
	assert.False(t, nc.IsMissing(testHash(2)))

	now = now.Add(2 * time.Minute)
	assert.False(t, nc.IsMissing(testHash(1)))
	assert.Equal(t, 0, nc.Size())

	nc.MarkMissing(testHash(1))
	nc.MarkMissing(testHash(2))
	nc.MarkMissing(testHash(3))
	assert.Equal(t, 2, nc.Size())
	assert.False(t, nc.IsMissing(testHash(1)))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, nc.Sweep())
	assert.Equal(t, 0, nc.Size())
}

func TestDatabaseFetchPaths(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Open(true))
	cfg := DefaultConfig()
	cfg.Backend = "memory"
	db := NewDatabase(backend, cfg)
	defer db.Close()
	ctx := context.Background()

	n, err := db.Fetch(ctx, testHash(1))
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = db.Fetch(ctx, testHash(1))
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Equal(t, uint64(1), db.Stats().NegativeHits)

	// Storing clears the negative entry.
	require.NoError(t, db.Store(ctx, testNode(1, 64)))
	n, err = db.Fetch(ctx, testHash(1))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Len(t, n.Data, 64)

	batch, err := db.FetchBatch(ctx, []types.Hash256{testHash(1), testHash(2)})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.NotNil(t, batch[0])
	assert.Nil(t, batch[1])

	stats := db.Stats()
	assert.Equal(t, uint64(1), stats.Writes)
	assert.Equal(t, uint64(5), stats.Reads)
	assert.Equal(t, "memory", stats.BackendName)
	assert.Contains(t, stats.String(), "nodestore memory")
}

func TestDatabaseReadsThroughToBackend(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Open(true))
	require.Equal(t, OK, backend.Store(testNode(9, 32)))

	cfg := DefaultConfig()
	cfg.Backend = "memory"
	db := NewDatabase(backend, cfg)

	n, err := db.Fetch(context.Background(), testHash(9))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, 1, db.Stats().CacheSize)
}

func TestDatabaseHonoursContext(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Open(true))
	db := NewDatabase(backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.Fetch(ctx, testHash(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, db.Store(ctx, testNode(1, 1)), context.Canceled)
}

func TestDatabaseStoreOnClosedBackend(t *testing.T) {
	backend := NewMemoryBackend()
	db := NewDatabase(backend, nil)

	err := db.Store(context.Background(), testNode(1, 1))
	var nsErr *NodeStoreError
	require.ErrorAs(t, err, &nsErr)
	assert.Equal(t, "store", nsErr.Operation)
}

func TestOpenFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "leveldb"
	cfg.Path = t.TempDir()
	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Store(context.Background(), testNode(1, 300)))
	require.NoError(t, db.Sync())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"memory without path", func(c *Config) { c.Backend = "memory"; c.Path = "" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "rocksdb" }, false},
		{"missing path", func(c *Config) { c.Path = "" }, false},
		{"negative cache", func(c *Config) { c.CacheSize = -1 }, false},
		{"negative ttl", func(c *Config) { c.NegativeTTL = -time.Second }, false},
		{"unknown compressor", func(c *Config) { c.Compressor = "zstd" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}
