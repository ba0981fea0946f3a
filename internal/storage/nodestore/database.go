package nodestore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// DatabaseImpl implements Database over a Backend with a positive and a
// negative cache in front.
type DatabaseImpl struct {
	backend  Backend
	cache    *Cache
	negative *NegativeCache

	reads        atomic.Uint64
	negativeHits atomic.Uint64
	readBytes    atomic.Uint64
	writes       atomic.Uint64
	writeBytes   atomic.Uint64
}

// NewDatabase wraps an open backend.
func NewDatabase(backend Backend, config *Config) *DatabaseImpl {
	if config == nil {
		config = DefaultConfig()
	}
	return &DatabaseImpl{
		backend:  backend,
		cache:    NewCache(config.CacheSize, config.CacheTTL),
		negative: NewNegativeCache(config.NegativeMaxSize, config.NegativeTTL),
	}
}

// Open validates config, creates the configured backend and opens it.
func Open(config *Config) (*DatabaseImpl, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	backend, err := CreateBackend(config.Backend, config)
	if err != nil {
		return nil, err
	}
	if err := backend.Open(config.CreateIfMissing); err != nil {
		return nil, err
	}
	return NewDatabase(backend, config), nil
}

// Backend returns the underlying backend.
func (d *DatabaseImpl) Backend() Backend {
	return d.backend
}

func (d *DatabaseImpl) Store(ctx context.Context, node *Node) error {
	return d.StoreBatch(ctx, []*Node{node})
}

func (d *DatabaseImpl) StoreBatch(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if status := d.backend.StoreBatch(nodes); status != OK {
		return &NodeStoreError{Operation: "store", Backend: d.backend.Name(), Cause: statusError(status)}
	}
	for _, n := range nodes {
		d.cache.Put(n)
		d.negative.Remove(n.Hash)
		d.writes.Add(1)
		d.writeBytes.Add(uint64(len(n.Data)))
	}
	return nil
}

func (d *DatabaseImpl) Fetch(ctx context.Context, hash types.Hash256) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.reads.Add(1)

	if n, ok := d.cache.Get(hash); ok {
		return n, nil
	}
	if d.negative.IsMissing(hash) {
		d.negativeHits.Add(1)
		return nil, nil
	}

	n, status := d.backend.Fetch(hash)
	switch status {
	case OK:
		d.readBytes.Add(uint64(len(n.Data)))
		d.cache.Put(n)
		return n, nil
	case NotFound:
		d.negative.MarkMissing(hash)
		return nil, nil
	default:
		return nil, &NodeStoreError{Operation: "fetch", Hash: hash, Backend: d.backend.Name(), Cause: statusError(status)}
	}
}

// FetchBatch returns one entry per hash, nil where the node is not stored.
func (d *DatabaseImpl) FetchBatch(ctx context.Context, hashes []types.Hash256) ([]*Node, error) {
	out := make([]*Node, len(hashes))
	for i, h := range hashes {
		n, err := d.Fetch(ctx, h)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (d *DatabaseImpl) Sweep() error {
	d.negative.Sweep()
	return nil
}

func (d *DatabaseImpl) Stats() Statistics {
	cs := d.cache.Stats()
	return Statistics{
		Reads:        d.reads.Load(),
		CacheHits:    cs.Hits,
		CacheMisses:  cs.Misses,
		NegativeHits: d.negativeHits.Load(),
		ReadBytes:    d.readBytes.Load(),
		Writes:       d.writes.Load(),
		WriteBytes:   d.writeBytes.Load(),
		CacheSize:    cs.Size,
		BackendName:  d.backend.Name(),
	}
}

// Sync flushes backend writes to stable storage.
func (d *DatabaseImpl) Sync() error {
	return statusError(d.backend.Sync())
}

func (d *DatabaseImpl) Close() error {
	d.cache.Clear()
	if err := d.backend.Close(); err != nil {
		return fmt.Errorf("close %s: %w", d.backend.Name(), err)
	}
	return nil
}

var _ Database = (*DatabaseImpl)(nil)
