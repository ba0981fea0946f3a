package acquire

import (
	"sync"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// InboundLedger is the acquisition of one ledger. Its mutex serializes all
// mutation of the state map being filled in.
type InboundLedger struct {
	hash    types.Hash256
	seq     uint32
	created time.Time

	mu         sync.Mutex
	state      State
	sm         *shamap.SHAMap
	retries    int
	progress   bool
	deadline   time.Time
	unreliable map[types.PeerID]struct{}
	tally      shamap.Tally
	nextPeer   int
	triggering bool
	ledger     *ledger.Ledger

	done chan struct{}
}

// Info is a read-only snapshot of an acquisition.
type Info struct {
	Hash            types.Hash256
	Seq             uint32
	State           State
	Retries         int
	Good            int
	Duplicate       int
	Bad             int
	Pending         int
	UnreliablePeers int
	Age             time.Duration
}

func newInboundLedger(hash types.Hash256, seq uint32, sm *shamap.SHAMap, now time.Time, deadline time.Duration) *InboundLedger {
	return &InboundLedger{
		hash:       hash,
		seq:        seq,
		created:    now,
		state:      StateUnstarted,
		sm:         sm,
		deadline:   now.Add(deadline),
		unreliable: make(map[types.PeerID]struct{}),
		done:       make(chan struct{}),
	}
}

func (il *InboundLedger) Hash() types.Hash256 { return il.hash }
func (il *InboundLedger) Seq() uint32 { return il.seq }

func (il *InboundLedger) State() State {
	il.mu.Lock()
	defer il.mu.Unlock()
	return il.state
}

// Ledger returns the sealed ledger once the acquisition completed.
func (il *InboundLedger) Ledger() (*ledger.Ledger, bool) {
	il.mu.Lock()
	defer il.mu.Unlock()
	return il.ledger, il.ledger != nil
}

// Done is closed when the acquisition reaches a terminal state.
func (il *InboundLedger) Done() <-chan struct{} {
	return il.done
}

// IsUnreliable reports whether peer sent bad data for this ledger.
func (il *InboundLedger) IsUnreliable(peer types.PeerID) bool {
	il.mu.Lock()
	defer il.mu.Unlock()
	_, bad := il.unreliable[peer]
	return bad
}

func (il *InboundLedger) info(now time.Time) Info {
	il.mu.Lock()
	defer il.mu.Unlock()
	return Info{
		Hash:            il.hash,
		Seq:             il.seq,
		State:           il.state,
		Retries:         il.retries,
		Good:            il.tally.Good,
		Duplicate:       il.tally.Duplicate,
		Bad:             il.tally.Bad,
		Pending:         il.sm.PendingCount(),
		UnreliablePeers: len(il.unreliable),
		Age:             now.Sub(il.created),
	}
}

// finishLocked moves to a terminal state exactly once.
func (il *InboundLedger) finishLocked(s State) bool {
	if il.state.IsTerminal() {
		return false
	}
	il.state = s
	close(il.done)
	return true
}

// missingLocked returns up to limit paths still needed.
func (il *InboundLedger) missingLocked(limit int) []shamap.NodeID {
	paths := make([]shamap.NodeID, 0, limit)
	for path := range il.sm.MissingNodes() {
		paths = append(paths, path)
		if len(paths) == limit {
			break
		}
	}
	return paths
}

// pickPeersLocked rotates through candidates skipping unreliable peers.
func (il *InboundLedger) pickPeersLocked(candidates []types.PeerID, n int) []types.PeerID {
	usable := candidates[:0:0]
	for _, p := range candidates {
		if _, bad := il.unreliable[p]; !bad {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return nil
	}
	if n > len(usable) {
		n = len(usable)
	}
	out := make([]types.PeerID, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, usable[(il.nextPeer+i)%len(usable)])
	}
	il.nextPeer = (il.nextPeer + n) % len(usable)
	return out
}
