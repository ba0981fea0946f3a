package validations

import (
	"sync"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
)

const (
	DefaultFreshness  = 5 * time.Minute
	DefaultWindowSize = 256
)

// Config tunes retention and quorum.
type Config struct {
	// Quorum is the trusted weight at which a ledger is fully validated.
	// Zero disables full validation.
	Quorum uint64
	// Freshness bounds how long a record stays live after it was seen.
	Freshness time.Duration
	// WindowSize is how many ledgers below the highest trusted sequence
	// are retained.
	WindowSize uint32
}

// Tracker holds at most one live record per validator and indexes records
// by the ledger they validate.
type Tracker struct {
	mu       sync.RWMutex
	byNode   map[crypto.NodeID]*Validation
	byLedger map[types.Hash256]map[crypto.NodeID]*Validation
	// lastSeq is the highest sequence accepted per node. It outlives the
	// records themselves so a node can never go backwards.
	lastSeq    map[crypto.NodeID]uint32
	ledgerSeq  map[types.Hash256]uint32
	announced  map[types.Hash256]struct{}
	highestSeq uint32

	trusted    TrustedSet
	quorum     uint64
	freshness  time.Duration
	windowSize uint32

	onFullyValidated func(hash types.Hash256, seq uint32)
	onTrusted        func(v *Validation)

	verifier crypto.Verifier
	now      func() time.Time
	log      zerolog.Logger
}

// Stats is a snapshot of tracker contents.
type Stats struct {
	LiveRecords    int
	TrustedRecords int
	NodesTracked   int
	LedgersTracked int
	HighestSeq     uint32
}

// New creates a tracker verifying signatures with verifier.
func New(cfg Config, verifier crypto.Verifier, logger zerolog.Logger) *Tracker {
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if verifier == nil {
		verifier = crypto.SignatureVerifier{}
	}
	return &Tracker{
		byNode:     make(map[crypto.NodeID]*Validation),
		byLedger:   make(map[types.Hash256]map[crypto.NodeID]*Validation),
		lastSeq:    make(map[crypto.NodeID]uint32),
		ledgerSeq:  make(map[types.Hash256]uint32),
		announced:  make(map[types.Hash256]struct{}),
		trusted:    TrustedSet{},
		quorum:     cfg.Quorum,
		freshness:  cfg.Freshness,
		windowSize: cfg.WindowSize,
		verifier:   verifier,
		now:        time.Now,
		log:        logger,
	}
}

// SetTrusted replaces the trusted validator set.
func (t *Tracker) SetTrusted(ts TrustedSet) {
	cp := make(TrustedSet, len(ts))
	for n, w := range ts {
		cp[n] = w
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trusted = cp
}

// IsTrusted reports whether the validator with this public key is trusted.
func (t *Tracker) IsTrusted(publicKey []byte) bool {
	node := crypto.CalcNodeID(publicKey)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trusted.Weight(node) > 0
}

func (t *Tracker) SetQuorum(quorum uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quorum = quorum
}

func (t *Tracker) Quorum() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.quorum
}

// SetFullyValidatedCallback sets fn to run once per ledger hash when its
// trusted weight first reaches quorum. fn runs without the tracker lock.
func (t *Tracker) SetFullyValidatedCallback(fn func(hash types.Hash256, seq uint32)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFullyValidated = fn
}

// SetTrustedCallback sets fn to run for every accepted trusted validation.
func (t *Tracker) SetTrustedCallback(fn func(v *Validation)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTrusted = fn
}

// Add offers v to the tracker. It returns false, with no side effect, for a
// malformed record, a bad signature, or a sequence not above the highest
// already accepted from the same node.
func (t *Tracker) Add(v *Validation, source string) bool {
	if v == nil || v.LedgerHash.IsZero() || v.LedgerSeq == 0 || len(v.PublicKey) == 0 {
		metricAdded.WithLabelValues("malformed").Inc()
		return false
	}
	node := crypto.CalcNodeID(v.PublicKey)
	if !v.NodeID.IsZero() && v.NodeID != node {
		metricAdded.WithLabelValues("malformed").Inc()
		t.log.Debug().Str("source", source).Str("node", v.NodeID.String()).Msg("Validation node ID does not match key")
		return false
	}
	if !t.verifier.Verify(v.PublicKey, v.SigningData(), v.Signature) {
		metricAdded.WithLabelValues("bad_signature").Inc()
		t.log.Debug().Str("source", source).Str("node", node.String()).Msg("Validation signature invalid")
		return false
	}

	rec := v.Clone()
	rec.NodeID = node
	if rec.SeenTime.IsZero() {
		rec.SeenTime = t.now()
	}

	t.mu.Lock()
	if last, ok := t.lastSeq[node]; ok && rec.LedgerSeq <= last {
		t.mu.Unlock()
		metricAdded.WithLabelValues("stale").Inc()
		t.log.Debug().Str("source", source).Str("node", node.String()).
			Uint32("seq", rec.LedgerSeq).Uint32("last", last).Msg("Stale validation")
		return false
	}
	if rec.LedgerSeq < t.floorLocked() {
		t.mu.Unlock()
		metricAdded.WithLabelValues("stale").Inc()
		return false
	}

	if old, ok := t.byNode[node]; ok {
		t.removeFromLedgerLocked(old)
	}
	t.byNode[node] = rec
	bucket := t.byLedger[rec.LedgerHash]
	if bucket == nil {
		bucket = make(map[crypto.NodeID]*Validation)
		t.byLedger[rec.LedgerHash] = bucket
	}
	bucket[node] = rec
	t.lastSeq[node] = rec.LedgerSeq

	// Only trusted records may name a ledger's sequence or move the window.
	trusted := t.trusted.Weight(node) > 0
	if trusted {
		if _, ok := t.ledgerSeq[rec.LedgerHash]; !ok {
			t.ledgerSeq[rec.LedgerHash] = rec.LedgerSeq
		}
		if rec.LedgerSeq > t.highestSeq {
			t.highestSeq = rec.LedgerSeq
		}
	}
	var fully func(types.Hash256, uint32)
	if trusted && t.quorum > 0 && t.onFullyValidated != nil {
		if _, done := t.announced[rec.LedgerHash]; !done && t.weightLocked(rec.LedgerHash) >= t.quorum {
			t.announced[rec.LedgerHash] = struct{}{}
			fully = t.onFullyValidated
		}
	}
	var onTrusted func(*Validation)
	if trusted {
		onTrusted = t.onTrusted
	}
	metricLive.Set(float64(len(t.byNode)))
	t.mu.Unlock()

	metricAdded.WithLabelValues("accepted").Inc()
	if onTrusted != nil {
		onTrusted(rec.Clone())
	}
	if fully != nil {
		fully(rec.LedgerHash, rec.LedgerSeq)
	}
	return true
}

// floorLocked is the lowest sequence still inside the retained window.
func (t *Tracker) floorLocked() uint32 {
	if t.highestSeq <= t.windowSize {
		return 0
	}
	return t.highestSeq - t.windowSize
}

func (t *Tracker) removeFromLedgerLocked(v *Validation) {
	bucket := t.byLedger[v.LedgerHash]
	if bucket == nil {
		return
	}
	if cur, ok := bucket[v.NodeID]; ok && cur == v {
		delete(bucket, v.NodeID)
	}
	if len(bucket) == 0 {
		delete(t.byLedger, v.LedgerHash)
	}
}

func (t *Tracker) weightLocked(hash types.Hash256) uint64 {
	var w uint64
	for node := range t.byLedger[hash] {
		w += t.trusted.Weight(node)
	}
	return w
}

func cloneAll(bucket map[crypto.NodeID]*Validation, keep func(crypto.NodeID) bool) []*Validation {
	out := make([]*Validation, 0, len(bucket))
	for node, v := range bucket {
		if keep == nil || keep(node) {
			out = append(out, v.Clone())
		}
	}
	return out
}

// GetValidations returns copies of the live records for hash.
func (t *Tracker) GetValidations(hash types.Hash256) []*Validation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneAll(t.byLedger[hash], nil)
}

// GetTrustedValidations returns copies of the trusted live records for hash.
func (t *Tracker) GetTrustedValidations(hash types.Hash256) []*Validation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneAll(t.byLedger[hash], func(n crypto.NodeID) bool { return t.trusted.Weight(n) > 0 })
}

func (t *Tracker) GetValidationCount(hash types.Hash256) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byLedger[hash])
}

// GetTrustedValidationCount counts distinct trusted nodes whose current
// record is for hash.
func (t *Tracker) GetTrustedValidationCount(hash types.Hash256) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for node := range t.byLedger[hash] {
		if t.trusted.Weight(node) > 0 {
			n++
		}
	}
	return n
}

// GetTrustedWeight sums the weight of trusted nodes validating hash.
func (t *Tracker) GetTrustedWeight(hash types.Hash256) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.weightLocked(hash)
}

func (t *Tracker) IsFullyValidated(hash types.Hash256) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.quorum > 0 && t.weightLocked(hash) >= t.quorum
}

// GetNodesAfter counts trusted nodes that have moved past hash: their
// current record has a higher sequence than hash's, or, when hash's
// sequence is unknown, names hash as its previous ledger. A node still on
// hash never counts.
func (t *Tracker) GetNodesAfter(hash types.Hash256) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seq, known := t.ledgerSeq[hash]
	n := 0
	for node, v := range t.byNode {
		if t.trusted.Weight(node) == 0 || v.LedgerHash == hash {
			continue
		}
		switch {
		case known && v.LedgerSeq > seq:
			n++
		case !known && v.PreviousLedger != nil && *v.PreviousLedger == hash:
			n++
		}
	}
	return n
}

// GetCurrentValidators returns nodes whose live record is still fresh.
func (t *Tracker) GetCurrentValidators() []crypto.NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cutoff := t.now().Add(-t.freshness)
	var out []crypto.NodeID
	for node, v := range t.byNode {
		if v.SeenTime.After(cutoff) {
			out = append(out, node)
		}
	}
	return out
}

// GetLatestValidation returns a copy of node's live record.
func (t *Tracker) GetLatestValidation(node crypto.NodeID) (*Validation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.byNode[node]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// HighestSeq returns the highest sequence accepted from a trusted validator.
func (t *Tracker) HighestSeq() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.highestSeq
}

// Sweep drops records not seen within the freshness interval and records
// for ledgers below the retained window. It returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.freshness)
	floor := t.floorLocked()
	removed := 0
	for node, v := range t.byNode {
		if v.SeenTime.Before(cutoff) || v.LedgerSeq < floor {
			t.removeFromLedgerLocked(v)
			delete(t.byNode, node)
			removed++
		}
	}
	// Below the floor Add rejects anyway, so these can go.
	for node, seq := range t.lastSeq {
		if seq < floor {
			delete(t.lastSeq, node)
		}
	}
	for hash, seq := range t.ledgerSeq {
		if _, live := t.byLedger[hash]; !live && seq < floor {
			delete(t.ledgerSeq, hash)
			delete(t.announced, hash)
		}
	}
	metricLive.Set(float64(len(t.byNode)))
	if removed > 0 {
		t.log.Debug().Int("removed", removed).Uint32("floor", floor).Msg("Swept validations")
	}
	return removed
}

// Flush removes and returns every live record. Per-node sequence history
// is kept.
func (t *Tracker) Flush() []*Validation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Validation, 0, len(t.byNode))
	for _, v := range t.byNode {
		out = append(out, v)
	}
	t.byNode = make(map[crypto.NodeID]*Validation)
	t.byLedger = make(map[types.Hash256]map[crypto.NodeID]*Validation)
	metricLive.Set(0)
	return out
}

func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Stats{
		LiveRecords:    len(t.byNode),
		NodesTracked:   len(t.lastSeq),
		LedgersTracked: len(t.byLedger),
		HighestSeq:     t.highestSeq,
	}
	for node := range t.byNode {
		if t.trusted.Weight(node) > 0 {
			s.TrustedRecords++
		}
	}
	return s
}
