package acquire

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/jobqueue"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators of a Master. Family is optional and lets an
// acquisition reuse nodes already held locally.
type Deps struct {
	Scheduler Scheduler
	Requester Requester
	Peers     PeerSource
	Reporter  PeerReporter
	Sink      LedgerSink
	Family    shamap.Family
}

// Master deduplicates acquisitions by hash and drives them.
type Master struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	active  map[types.Hash256]*InboundLedger
	stopped bool

	failures *RecentFailureCache
	ctx      context.Context
	cancel   context.CancelFunc
	now      func() time.Time
	log      zerolog.Logger
}

// NewMaster creates a master. Scheduler, Requester, Peers and Sink are
// required.
func NewMaster(cfg Config, deps Deps, logger zerolog.Logger) *Master {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Master{
		cfg:      cfg,
		deps:     deps,
		active:   make(map[types.Hash256]*InboundLedger),
		failures: NewRecentFailureCache(cfg.FailureCacheSize, cfg.ReacquireInterval),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		log:      logger,
	}
}

// FindCreate returns the in-flight acquisition of hash, starting one when
// there is none. A hash that failed recently is refused unless force is
// set, in which case the failure is forgotten.
func (m *Master) FindCreate(hash types.Hash256, seq uint32, force bool) (*InboundLedger, error) {
	if hash.IsZero() {
		return nil, ErrZeroHash
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	if il, ok := m.active[hash]; ok {
		m.mu.Unlock()
		return il, nil
	}
	if m.failures.Contains(hash) {
		if !force {
			m.mu.Unlock()
			return nil, ErrRecentlyFailed
		}
		m.failures.Remove(hash)
	}

	opts := []shamap.Option{shamap.WithMaxPending(m.cfg.MaxPendingNodes)}
	if m.deps.Family != nil {
		opts = append(opts, shamap.WithFamily(m.deps.Family))
	}
	sm := shamap.NewSyncing(shamap.TypeState, hash, opts...)
	il := newInboundLedger(hash, seq, sm, m.now(), m.cfg.AcquireDeadline)
	il.state = StateAwaitingPeers
	m.active[hash] = il
	metricActive.Set(float64(len(m.active)))
	m.mu.Unlock()

	m.log.Debug().Str("hash", hash.Short()).Uint32("seq", seq).Msg("Acquiring ledger")
	m.scheduleTrigger(il)
	return il, nil
}

// Find returns the in-flight acquisition of hash.
func (m *Master) Find(hash types.Hash256) (*InboundLedger, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	il, ok := m.active[hash]
	return il, ok
}

// IsFailure reports whether hash is in the recent failure cache.
func (m *Master) IsFailure(hash types.Hash256) bool {
	return m.failures.Contains(hash)
}

// GetLedger returns the ledger if it is already held and otherwise makes
// sure it is being acquired.
func (m *Master) GetLedger(hash types.Hash256, seq uint32) (*ledger.Ledger, error) {
	if l, ok := m.deps.Sink.GetLedgerByHash(hash); ok {
		return l, nil
	}
	il, err := m.FindCreate(hash, seq, false)
	switch {
	case errors.Is(err, ErrRecentlyFailed):
		return nil, fmt.Errorf("%w: %s", ErrLedgerUnavailable, err)
	case err != nil:
		return nil, err
	}
	if l, ok := il.Ledger(); ok {
		return l, nil
	}
	return nil, ErrLedgerPending
}

// GotLedgerData hands nodes received from peer to the acquisition of hash.
// Processing happens in a job; the return value only says whether the data
// was queued. Data for hashes not being acquired is dropped.
func (m *Master) GotLedgerData(peer types.PeerID, hash types.Hash256, nodes []NodeBlob) bool {
	il, ok := m.Find(hash)
	if !ok {
		m.log.Debug().Str("hash", hash.Short()).Stringer("peer", peer).Msg("Ledger data for unknown acquisition")
		return false
	}
	return m.deps.Scheduler.AddJob(jobqueue.JobLedgerData, "gotLedgerData", func() {
		m.processData(il, peer, nodes)
	})
}

func (m *Master) processData(il *InboundLedger, peer types.PeerID, nodes []NodeBlob) {
	il.mu.Lock()
	if il.state.IsTerminal() {
		il.mu.Unlock()
		return
	}
	if _, bad := il.unreliable[peer]; bad {
		il.mu.Unlock()
		return
	}

	result := shamap.AddNodeOk
	for _, blob := range nodes {
		r := il.tally.Add(il.sm.AddNode(blob.Path, blob.Data, nil))
		metricNodes.WithLabelValues(r.String()).Inc()
		result = shamap.Combine(result, r)
		if r == shamap.AddNodeInvalid {
			break
		}
	}

	switch result {
	case shamap.AddNodeInvalid:
		il.unreliable[peer] = struct{}{}
		il.mu.Unlock()
		m.log.Info().Str("hash", il.hash.Short()).Stringer("peer", peer).Msg("Peer sent invalid ledger data")
		if m.deps.Reporter != nil {
			m.deps.Reporter.ChargeInvalidData(peer, "invalid ledger node")
		}
		m.scheduleTrigger(il)
		return
	case shamap.AddNodeUseful:
		il.progress = true
		if il.state == StateAwaitingPeers {
			il.state = StatePartiallyComplete
		}
	}
	complete := il.sm.IsComplete()
	il.mu.Unlock()

	if complete {
		m.complete(il)
	} else if result == shamap.AddNodeUseful {
		m.scheduleTrigger(il)
	}
}

// scheduleTrigger queues a request round unless one is already queued.
func (m *Master) scheduleTrigger(il *InboundLedger) {
	il.mu.Lock()
	if il.triggering || il.state.IsTerminal() {
		il.mu.Unlock()
		return
	}
	il.triggering = true
	il.mu.Unlock()

	if !m.deps.Scheduler.AddJob(jobqueue.JobLedgerRequest, "acquireTrigger", func() { m.trigger(il) }) {
		il.mu.Lock()
		il.triggering = false
		il.mu.Unlock()
	}
}

// trigger requests the next batch of missing nodes from a few peers.
func (m *Master) trigger(il *InboundLedger) {
	il.mu.Lock()
	il.triggering = false
	if il.state.IsTerminal() {
		il.mu.Unlock()
		return
	}
	if il.sm.IsComplete() {
		il.mu.Unlock()
		m.complete(il)
		return
	}
	paths := il.missingLocked(m.cfg.MaxRequestNodes)
	peers := il.pickPeersLocked(m.deps.Peers.ActivePeers(), m.cfg.PeersPerRound)
	if len(peers) == 0 && !il.progress {
		il.state = StateAwaitingPeers
	}
	il.mu.Unlock()

	if len(peers) == 0 {
		m.log.Debug().Str("hash", il.hash.Short()).Msg("No usable peers for acquisition")
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.RetryInterval)
	defer cancel()
	var g errgroup.Group
	for _, peer := range peers {
		g.Go(func() error {
			if err := m.deps.Requester.RequestLedgerData(ctx, peer, il.hash, il.seq, paths); err != nil {
				m.log.Debug().Err(err).Stringer("peer", peer).Str("hash", il.hash.Short()).Msg("Ledger request failed")
			}
			return nil
		})
	}
	g.Wait()
}

// OnTimer runs one timeout check per active acquisition, as jobs.
func (m *Master) OnTimer() {
	for _, il := range m.snapshot() {
		m.deps.Scheduler.AddJob(jobqueue.JobLedgerRequest, "acquireTimer", func() { m.timeout(il) })
	}
}

func (m *Master) timeout(il *InboundLedger) {
	il.mu.Lock()
	if il.state.IsTerminal() {
		il.mu.Unlock()
		return
	}
	if !il.progress {
		il.retries++
	}
	il.progress = false
	expired := m.now().After(il.deadline)
	if il.retries > m.cfg.MaxRetries || expired {
		retries := il.retries
		il.mu.Unlock()
		m.fail(il, retries, expired)
		return
	}
	il.mu.Unlock()
	m.scheduleTrigger(il)
}

func (m *Master) fail(il *InboundLedger, retries int, expired bool) {
	il.mu.Lock()
	ok := il.finishLocked(StateFailed)
	il.mu.Unlock()
	if !ok {
		return
	}
	m.failures.Insert(il.hash)
	m.remove(il)
	metricFinished.WithLabelValues(StateFailed.String()).Inc()
	m.log.Warn().Str("hash", il.hash.Short()).Uint32("seq", il.seq).
		Int("retries", retries).Bool("deadline", expired).Msg("Ledger acquisition failed")
}

func (m *Master) complete(il *InboundLedger) {
	il.mu.Lock()
	if il.state.IsTerminal() {
		il.mu.Unlock()
		return
	}
	if err := il.sm.SetImmutable(); err != nil {
		il.mu.Unlock()
		m.log.Error().Err(err).Str("hash", il.hash.Short()).Msg("Cannot seal acquired ledger")
		return
	}
	l, err := ledger.New(ledger.Header{Seq: il.seq, Hash: il.hash}, il.sm)
	if err != nil {
		il.mu.Unlock()
		m.log.Error().Err(err).Str("hash", il.hash.Short()).Msg("Cannot build acquired ledger")
		return
	}
	il.ledger = l
	il.finishLocked(StateComplete)
	il.mu.Unlock()

	// Stored before leaving the active set so lookups always find it.
	if err := m.deps.Sink.StoreLedger(l); err != nil {
		m.log.Warn().Err(err).Str("hash", il.hash.Short()).Msg("Storing acquired ledger")
	}
	m.remove(il)
	metricFinished.WithLabelValues(StateComplete.String()).Inc()
	m.log.Info().Str("hash", il.hash.Short()).Uint32("seq", il.seq).Msg("Acquired ledger")
}

func (m *Master) remove(il *InboundLedger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.active[il.hash]; ok && cur == il {
		delete(m.active, il.hash)
	}
	metricActive.Set(float64(len(m.active)))
}

func (m *Master) snapshot() []*InboundLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*InboundLedger, 0, len(m.active))
	for _, il := range m.active {
		out = append(out, il)
	}
	return out
}

// Sweep drops expired failure records and returns how many went.
func (m *Master) Sweep() int {
	return m.failures.Sweep()
}

// Info returns snapshots of every in-flight acquisition by sequence.
func (m *Master) Info() []Info {
	now := m.now()
	list := m.snapshot()
	out := make([]Info, 0, len(list))
	for _, il := range list {
		out = append(out, il.info(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ActiveCount returns the number of in-flight acquisitions.
func (m *Master) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Run calls OnTimer and Sweep every retry interval until ctx ends.
func (m *Master) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.OnTimer()
			m.Sweep()
		}
	}
}

// Stop abandons every acquisition and refuses new ones. Abandoned hashes
// are not recorded as failures.
func (m *Master) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	list := make([]*InboundLedger, 0, len(m.active))
	for _, il := range m.active {
		list = append(list, il)
	}
	m.active = make(map[types.Hash256]*InboundLedger)
	metricActive.Set(0)
	m.mu.Unlock()

	m.cancel()
	for _, il := range list {
		il.mu.Lock()
		il.finishLocked(StateFailed)
		il.mu.Unlock()
	}
	m.log.Info().Int("abandoned", len(list)).Msg("Acquire master stopped")
}
