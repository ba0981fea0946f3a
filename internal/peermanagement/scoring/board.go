package scoring

import (
	"slices"
	"sync"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
)

// ConnectedPeers lists the peers currently connected.
type ConnectedPeers interface {
	ActivePeers() []types.PeerID
}

// Board holds the score and charge balance of every known peer.
type Board struct {
	mu     sync.Mutex
	peers  map[types.PeerID]*entry
	source ConnectedPeers
	onDrop func(types.PeerID)
	now    func() time.Time
	log    zerolog.Logger
}

type entry struct {
	score    *PeerScore
	consumer *Consumer
}

// NewBoard creates a board ranking the peers of source. onDrop, if set, is
// called when a peer's charge balance reaches the limit.
func NewBoard(source ConnectedPeers, onDrop func(types.PeerID), logger zerolog.Logger) *Board {
	return &Board{
		peers:  make(map[types.PeerID]*entry),
		source: source,
		onDrop: onDrop,
		now:    time.Now,
		log:    logger,
	}
}

func (b *Board) get(peer types.PeerID) *entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.peers[peer]
	if !ok {
		e = &entry{score: NewPeerScore(), consumer: newConsumer(b.now)}
		b.peers[peer] = e
	}
	return e
}

// Score returns the score tracker of peer, creating it if needed.
func (b *Board) Score(peer types.PeerID) *PeerScore {
	return b.get(peer).score
}

// Charge adds a charge to peer and drops it once over the limit.
func (b *Board) Charge(peer types.PeerID, c ChargeType, reason string) {
	e := b.get(peer)
	e.consumer.Charge(c)
	usage := e.consumer.Usage()
	switch {
	case usage >= 1:
		b.log.Warn().Stringer("peer", peer).Str("reason", reason).Msg("Dropping peer over charge limit")
		b.Remove(peer)
		if b.onDrop != nil {
			b.onDrop(peer)
		}
	case usage >= DefaultWarningThreshold:
		b.log.Info().Stringer("peer", peer).Str("reason", reason).Float64("usage", usage).Msg("Peer charge high")
	}
}

// ChargeInvalidData records a reply that failed verification.
func (b *Board) ChargeInvalidData(peer types.PeerID, reason string) {
	b.Score(peer).RecordInvalid()
	b.Charge(peer, ChargeInvalid, reason)
}

// Remove forgets peer.
func (b *Board) Remove(peer types.PeerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, peer)
}

// ActivePeers returns the connected peers best score first.
func (b *Board) ActivePeers() []types.PeerID {
	return b.Rank(b.source.ActivePeers())
}

// Rank orders peers by score, best first; ties keep their order.
func (b *Board) Rank(peers []types.PeerID) []types.PeerID {
	scores := make(map[types.PeerID]int, len(peers))
	for _, p := range peers {
		scores[p] = b.Score(p).Score()
	}
	out := slices.Clone(peers)
	slices.SortStableFunc(out, func(x, y types.PeerID) int {
		return scores[y] - scores[x]
	})
	return out
}

// Len returns the number of tracked peers.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}
