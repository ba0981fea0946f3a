package nodestore

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

const pebbleCacheSize = 128 << 20

// PebbleBackend stores nodes in a PebbleDB instance.
type PebbleBackend struct {
	db     *pebble.DB
	codec  codec
	config *Config
	open   atomic.Bool
}

// NewPebbleBackend creates a PebbleDB backend; call Open before use.
func NewPebbleBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}
	c, err := newCodec(config.Compressor)
	if err != nil {
		return nil, fmt.Errorf("failed to get compressor %s: %w", config.Compressor, err)
	}
	return &PebbleBackend{codec: c, config: config}, nil
}

func (p *PebbleBackend) Name() string {
	return fmt.Sprintf("pebble(%s)", p.config.Path)
}

func (p *PebbleBackend) Open(createIfMissing bool) error {
	if !p.open.CompareAndSwap(false, true) {
		return ErrBackendOpen
	}
	if createIfMissing {
		if err := os.MkdirAll(p.config.Path, 0o755); err != nil {
			p.open.Store(false)
			return fmt.Errorf("failed to create directory %s: %w", p.config.Path, err)
		}
	}

	cache := pebble.NewCache(pebbleCacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:            cache,
		ErrorIfNotExists: !createIfMissing,
		Levels:           make([]pebble.LevelOptions, 7),
	}
	for i := range opts.Levels {
		opts.Levels[i] = pebble.LevelOptions{
			BlockSize:    32 << 10,
			FilterPolicy: bloom.FilterPolicy(10),
			FilterType:   pebble.TableFilter,
			// Values are compressed before they reach the engine.
			Compression: pebble.NoCompression,
		}
	}

	db, err := pebble.Open(p.config.Path, opts)
	if err != nil {
		p.open.Store(false)
		return fmt.Errorf("failed to open PebbleDB at %s: %w", p.config.Path, err)
	}
	p.db = db
	return nil
}

func (p *PebbleBackend) Close() error {
	if !p.open.CompareAndSwap(true, false) {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

func (p *PebbleBackend) IsOpen() bool { return p.open.Load() }

func (p *PebbleBackend) Fetch(key types.Hash256) (*Node, Status) {
	if !p.IsOpen() {
		return nil, BackendError
	}
	value, closer, err := p.db.Get(key[:])
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, NotFound
	}
	if err != nil {
		return nil, BackendError
	}
	defer closer.Close()

	node, err := decodeNode(key, value)
	if err != nil {
		return nil, DataCorrupt
	}
	return node, OK
}

func (p *PebbleBackend) Store(node *Node) Status {
	return p.StoreBatch([]*Node{node})
}

func (p *PebbleBackend) StoreBatch(nodes []*Node) Status {
	if !p.IsOpen() {
		return BackendError
	}
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, n := range nodes {
		value, err := p.codec.encode(n)
		if err != nil {
			return BackendError
		}
		if err := batch.Set(n.Hash[:], value, nil); err != nil {
			return BackendError
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return BackendError
	}
	return OK
}

func (p *PebbleBackend) Sync() Status {
	if !p.IsOpen() {
		return BackendError
	}
	if err := p.db.Flush(); err != nil {
		return BackendError
	}
	return OK
}

func (p *PebbleBackend) ForEach(fn func(*Node) error) error {
	if !p.IsOpen() {
		return ErrBackendClosed
	}
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key, err := types.Hash256FromBytes(iter.Key())
		if err != nil {
			continue
		}
		node, err := decodeNode(key, iter.Value())
		if err != nil {
			return &NodeStoreError{Operation: "iterate", Hash: key, Backend: p.Name(), Cause: err}
		}
		if err := fn(node); err != nil {
			return err
		}
	}
	return iter.Error()
}
