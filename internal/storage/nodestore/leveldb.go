package nodestore

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBBackend stores nodes in a goleveldb database.
type LevelDBBackend struct {
	db     *leveldb.DB
	codec  codec
	config *Config
	open   atomic.Bool
}

// NewLevelDBBackend creates a LevelDB backend; call Open before use.
func NewLevelDBBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}
	c, err := newCodec(config.Compressor)
	if err != nil {
		return nil, fmt.Errorf("failed to get compressor %s: %w", config.Compressor, err)
	}
	return &LevelDBBackend{codec: c, config: config}, nil
}

func (l *LevelDBBackend) Name() string {
	return fmt.Sprintf("leveldb(%s)", l.config.Path)
}

func (l *LevelDBBackend) Open(createIfMissing bool) error {
	if !l.open.CompareAndSwap(false, true) {
		return ErrBackendOpen
	}
	db, err := leveldb.OpenFile(l.config.Path, &opt.Options{
		ErrorIfMissing: !createIfMissing,
		Compression:    opt.NoCompression,
	})
	if err != nil {
		l.open.Store(false)
		return fmt.Errorf("failed to open LevelDB at %s: %w", l.config.Path, err)
	}
	l.db = db
	return nil
}

func (l *LevelDBBackend) Close() error {
	if !l.open.CompareAndSwap(true, false) {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func (l *LevelDBBackend) IsOpen() bool { return l.open.Load() }

func (l *LevelDBBackend) Fetch(key types.Hash256) (*Node, Status) {
	if !l.IsOpen() {
		return nil, BackendError
	}
	value, err := l.db.Get(key[:], nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, NotFound
	}
	if err != nil {
		return nil, BackendError
	}
	node, err := decodeNode(key, value)
	if err != nil {
		return nil, DataCorrupt
	}
	return node, OK
}

func (l *LevelDBBackend) Store(node *Node) Status {
	return l.StoreBatch([]*Node{node})
}

func (l *LevelDBBackend) StoreBatch(nodes []*Node) Status {
	if !l.IsOpen() {
		return BackendError
	}
	batch := new(leveldb.Batch)
	for _, n := range nodes {
		value, err := l.codec.encode(n)
		if err != nil {
			return BackendError
		}
		batch.Put(n.Hash[:], value)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return BackendError
	}
	return OK
}

func (l *LevelDBBackend) Sync() Status {
	if !l.IsOpen() {
		return BackendError
	}
	// An empty synced write flushes the journal.
	if err := l.db.Write(new(leveldb.Batch), &opt.WriteOptions{Sync: true}); err != nil {
		return BackendError
	}
	return OK
}

func (l *LevelDBBackend) ForEach(fn func(*Node) error) error {
	if !l.IsOpen() {
		return ErrBackendClosed
	}
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		key, err := types.Hash256FromBytes(iter.Key())
		if err != nil {
			continue
		}
		node, err := decodeNode(key, iter.Value())
		if err != nil {
			return &NodeStoreError{Operation: "iterate", Hash: key, Backend: l.Name(), Cause: err}
		}
		if err := fn(node); err != nil {
			return err
		}
	}
	return iter.Error()
}
