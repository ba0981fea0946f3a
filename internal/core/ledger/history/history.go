// Package history keeps recently acquired ledgers in a bounded cache and
// resolves cold lookups through the ledger header index and node store.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/storage/ledgerindex"
	"github.com/LeJamon/goXRPLsync/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const defaultCacheSize = 256

// HeaderIndex persists ledger headers. *ledgerindex.Index implements it.
type HeaderIndex interface {
	Put(ctx context.Context, rec ledgerindex.Record) error
	BySeq(ctx context.Context, seq uint32) (ledgerindex.Record, error)
	ByHash(ctx context.Context, hash types.Hash256) (ledgerindex.Record, error)
	MarkValidated(ctx context.Context, hash types.Hash256) error
}

// Config wires the optional persistent layers. Without Family and Index
// the history is a pure in-memory cache.
type Config struct {
	CacheSize int
	Family    shamap.Family
	Index     HeaderIndex
	Timeout   time.Duration
}

// History is the ledger cache consulted before acquiring a ledger.
type History struct {
	byHash *lru.Cache[types.Hash256, *ledger.Ledger]
	bySeq  *lru.Cache[uint32, types.Hash256]
	family shamap.Family
	index  HeaderIndex

	mu          sync.RWMutex
	complete    RangeSet
	subscribers []func(*ledger.Ledger)

	hits    atomic.Uint64
	misses  atomic.Uint64
	loads   atomic.Uint64
	timeout time.Duration
	log     zerolog.Logger
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Cached   int
	Hits     uint64
	Misses   uint64
	Loads    uint64
	Complete string
}

func New(cfg Config, logger zerolog.Logger) (*History, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	byHash, err := lru.New[types.Hash256, *ledger.Ledger](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	bySeq, err := lru.New[uint32, types.Hash256](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &History{
		byHash:  byHash,
		bySeq:   bySeq,
		family:  cfg.Family,
		index:   cfg.Index,
		timeout: cfg.Timeout,
		log:     logger,
	}, nil
}

// Subscribe registers fn to be called, in the storing goroutine, for every
// ledger accepted by StoreLedger.
func (h *History) Subscribe(fn func(*ledger.Ledger)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// StoreLedger caches l, persists its nodes and header when the persistent
// layers are configured, and announces it to subscribers.
func (h *History) StoreLedger(l *ledger.Ledger) error {
	if l == nil {
		return errors.New("nil ledger")
	}
	h.byHash.Add(l.Hash(), l)
	h.bySeq.Add(l.Seq(), l.Hash())

	var persistErr error
	if h.family != nil {
		if _, err := l.StateMap().Flush(h.family); err != nil {
			persistErr = fmt.Errorf("flush state of %s: %w", l, err)
		}
	}
	if persistErr == nil && h.index != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := h.index.Put(ctx, ledgerindex.Record{
			Seq:        l.Seq(),
			Hash:       l.Hash(),
			ParentHash: l.ParentHash(),
			CloseTime:  l.CloseTime(),
			Validated:  l.IsValidated(),
		})
		cancel()
		if err != nil {
			persistErr = fmt.Errorf("index %s: %w", l, err)
		}
	}

	h.mu.Lock()
	h.complete.Add(l.Seq())
	subs := slices.Clone(h.subscribers)
	h.mu.Unlock()

	h.log.Debug().Uint32("seq", l.Seq()).Str("hash", l.Hash().Short()).Msg("Stored ledger")
	for _, fn := range subs {
		fn(l)
	}
	return persistErr
}

// HasLedger reports whether the ledger is cached or can be loaded.
func (h *History) HasLedger(hash types.Hash256) bool {
	if h.byHash.Contains(hash) {
		return true
	}
	_, ok := h.GetLedgerByHash(hash)
	return ok
}

// GetLedgerByHash returns the ledger from cache, or loads it from the
// persistent layers.
func (h *History) GetLedgerByHash(hash types.Hash256) (*ledger.Ledger, bool) {
	if l, ok := h.byHash.Get(hash); ok {
		h.hits.Add(1)
		return l, true
	}
	h.misses.Add(1)
	rec, err := h.lookupHash(hash)
	if err != nil {
		return nil, false
	}
	return h.load(rec)
}

// GetLedgerBySeq returns the ledger held for seq.
func (h *History) GetLedgerBySeq(seq uint32) (*ledger.Ledger, bool) {
	if hash, ok := h.bySeq.Get(seq); ok {
		if l, ok := h.byHash.Get(hash); ok {
			h.hits.Add(1)
			return l, true
		}
	}
	h.misses.Add(1)
	if h.index == nil || h.family == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	rec, err := h.index.BySeq(ctx, seq)
	if err != nil {
		if !errors.Is(err, ledgerindex.ErrLedgerNotFound) {
			h.log.Warn().Err(err).Uint32("seq", seq).Msg("Ledger index lookup failed")
		}
		return nil, false
	}
	return h.load(rec)
}

// GetHashBySeq returns the hash of the ledger held for seq.
func (h *History) GetHashBySeq(seq uint32) (types.Hash256, bool) {
	if hash, ok := h.bySeq.Get(seq); ok {
		return hash, true
	}
	if l, ok := h.GetLedgerBySeq(seq); ok {
		return l.Hash(), true
	}
	return types.Hash256{}, false
}

func (h *History) lookupHash(hash types.Hash256) (ledgerindex.Record, error) {
	if h.index == nil || h.family == nil {
		return ledgerindex.Record{}, ledgerindex.ErrLedgerNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	rec, err := h.index.ByHash(ctx, hash)
	if err != nil && !errors.Is(err, ledgerindex.ErrLedgerNotFound) {
		h.log.Warn().Err(err).Str("hash", hash.Short()).Msg("Ledger index lookup failed")
	}
	return rec, err
}

// load rebuilds a ledger over a backed state map and caches it.
func (h *History) load(rec ledgerindex.Record) (*ledger.Ledger, bool) {
	state, err := shamap.NewBacked(shamap.TypeState, rec.Hash, h.family)
	if err != nil {
		h.log.Debug().Err(err).Uint32("seq", rec.Seq).Msg("Indexed ledger not in node store")
		return nil, false
	}
	l, err := ledger.New(ledger.Header{
		Seq:        rec.Seq,
		ParentHash: rec.ParentHash,
		CloseTime:  rec.CloseTime,
		Hash:       rec.Hash,
	}, state)
	if err != nil {
		h.log.Warn().Err(err).Uint32("seq", rec.Seq).Msg("Indexed ledger does not match its state")
		return nil, false
	}
	if rec.Validated {
		l.MarkValidated()
	}
	h.loads.Add(1)
	h.byHash.Add(l.Hash(), l)
	h.bySeq.Add(l.Seq(), l.Hash())

	h.mu.Lock()
	h.complete.Add(l.Seq())
	h.mu.Unlock()
	return l, true
}

// MarkValidated flags the ledger with hash as fully validated, in memory and
// in the header index. It reports whether the ledger is held.
func (h *History) MarkValidated(hash types.Hash256) bool {
	l, ok := h.GetLedgerByHash(hash)
	if !ok {
		return false
	}
	l.MarkValidated()
	if h.index != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		err := h.index.MarkValidated(ctx, hash)
		cancel()
		// Not indexed yet: StoreLedger writes the flag with the header.
		if err != nil && !errors.Is(err, ledgerindex.ErrLedgerNotFound) {
			h.log.Warn().Err(err).Uint32("seq", l.Seq()).Str("hash", hash.Short()).Msg("Failed to persist validated flag")
		}
	}
	return true
}

// CompleteRange returns the bounds of the sequences stored so far.
func (h *History) CompleteRange() (lo, hi uint32, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.complete.Bounds()
}

// Missing returns sequences in [start, end] never stored.
func (h *History) Missing(start, end uint32) []uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.complete.Missing(start, end)
}

func (h *History) Stats() Stats {
	h.mu.RLock()
	complete := h.complete.String()
	h.mu.RUnlock()
	return Stats{
		Cached:   h.byHash.Len(),
		Hits:     h.hits.Load(),
		Misses:   h.misses.Load(),
		Loads:    h.loads.Load(),
		Complete: complete,
	}
}
