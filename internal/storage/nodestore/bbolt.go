package nodestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	"go.etcd.io/bbolt"
)

var bboltBucket = []byte("nodes")

// BBoltBackend stores nodes in a single bbolt bucket.
type BBoltBackend struct {
	db     *bbolt.DB
	codec  codec
	config *Config
	open   atomic.Bool
}

// NewBBoltBackend creates a bbolt backend; call Open before use. The
// configured path is a directory holding nodes.db.
func NewBBoltBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}
	c, err := newCodec(config.Compressor)
	if err != nil {
		return nil, fmt.Errorf("failed to get compressor %s: %w", config.Compressor, err)
	}
	return &BBoltBackend{codec: c, config: config}, nil
}

func (b *BBoltBackend) Name() string {
	return fmt.Sprintf("bbolt(%s)", b.config.Path)
}

func (b *BBoltBackend) Open(createIfMissing bool) error {
	if !b.open.CompareAndSwap(false, true) {
		return ErrBackendOpen
	}
	file := filepath.Join(b.config.Path, "nodes.db")
	if createIfMissing {
		if err := os.MkdirAll(b.config.Path, 0o755); err != nil {
			b.open.Store(false)
			return fmt.Errorf("failed to create directory %s: %w", b.config.Path, err)
		}
	} else if _, err := os.Stat(file); err != nil {
		b.open.Store(false)
		return fmt.Errorf("bbolt database %s: %w", file, err)
	}

	db, err := bbolt.Open(file, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		b.open.Store(false)
		return fmt.Errorf("failed to open bbolt at %s: %w", file, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bboltBucket)
		return err
	})
	if err != nil {
		db.Close()
		b.open.Store(false)
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	b.db = db
	return nil
}

func (b *BBoltBackend) Close() error {
	if !b.open.CompareAndSwap(true, false) {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *BBoltBackend) IsOpen() bool { return b.open.Load() }

func (b *BBoltBackend) Fetch(key types.Hash256) (*Node, Status) {
	if !b.IsOpen() {
		return nil, BackendError
	}
	var (
		node   *Node
		status = NotFound
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bboltBucket).Get(key[:])
		if value == nil {
			return nil
		}
		// decodeNode copies the payload out of the mmap.
		n, err := decodeNode(key, value)
		if err != nil {
			status = DataCorrupt
			return nil
		}
		node, status = n, OK
		return nil
	})
	if err != nil {
		return nil, BackendError
	}
	return node, status
}

func (b *BBoltBackend) Store(node *Node) Status {
	return b.StoreBatch([]*Node{node})
}

func (b *BBoltBackend) StoreBatch(nodes []*Node) Status {
	if !b.IsOpen() {
		return BackendError
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bboltBucket)
		for _, n := range nodes {
			value, err := b.codec.encode(n)
			if err != nil {
				return err
			}
			if err := bucket.Put(n.Hash[:], value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BackendError
	}
	return OK
}

func (b *BBoltBackend) Sync() Status {
	if !b.IsOpen() {
		return BackendError
	}
	if err := b.db.Sync(); err != nil {
		return BackendError
	}
	return OK
}

func (b *BBoltBackend) ForEach(fn func(*Node) error) error {
	if !b.IsOpen() {
		return ErrBackendClosed
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bboltBucket).ForEach(func(k, v []byte) error {
			key, err := types.Hash256FromBytes(k)
			if err != nil {
				return nil
			}
			node, err := decodeNode(key, v)
			if err != nil {
				return &NodeStoreError{Operation: "iterate", Hash: key, Backend: b.Name(), Cause: err}
			}
			return fn(node)
		})
	})
}
