// Package acquire fetches ledgers this node does not have from its peers.
// A Master owns one InboundLedger per wanted hash, drives fetch rounds as
// jobs on the job queue and remembers hashes that recently failed.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/jobqueue"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

var (
	ErrRecentlyFailed    = errors.New("ledger acquisition recently failed")
	ErrLedgerPending     = errors.New("ledger acquisition in progress")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrStopped           = errors.New("acquire master stopped")
	ErrZeroHash          = errors.New("zero ledger hash")
)

// State is the lifecycle position of an InboundLedger.
type State int

const (
	StateUnstarted State = iota
	StateAwaitingPeers
	StatePartiallyComplete
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateAwaitingPeers:
		return "awaiting_peers"
	case StatePartiallyComplete:
		return "partially_complete"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// NodeBlob is one tree node as received from a peer.
type NodeBlob struct {
	Path shamap.NodeID
	Data []byte
}

// Requester sends node requests to peers. Sends must not block on the
// reply.
type Requester interface {
	RequestLedgerData(ctx context.Context, peer types.PeerID, hash types.Hash256, seq uint32, paths []shamap.NodeID) error
}

// PeerSource lists the peers requests may go to, best first.
type PeerSource interface {
	ActivePeers() []types.PeerID
}

// PeerReporter receives misbehaviour reports.
type PeerReporter interface {
	ChargeInvalidData(peer types.PeerID, reason string)
}

// LedgerSink receives completed ledgers and is consulted before acquiring.
type LedgerSink interface {
	StoreLedger(l *ledger.Ledger) error
	HasLedger(hash types.Hash256) bool
	GetLedgerByHash(hash types.Hash256) (*ledger.Ledger, bool)
}

// Scheduler runs work off the calling goroutine. *jobqueue.JobQueue
// implements it.
type Scheduler interface {
	AddJob(t jobqueue.JobType, name string, fn func()) bool
}

// Config holds acquisition tuning. Zero fields take defaults.
type Config struct {
	MaxRetries        int           `toml:"max_retries" mapstructure:"max_retries"`
	RetryInterval     time.Duration `toml:"retry_interval" mapstructure:"retry_interval"`
	AcquireDeadline   time.Duration `toml:"acquire_deadline" mapstructure:"acquire_deadline"`
	ReacquireInterval time.Duration `toml:"reacquire_interval" mapstructure:"reacquire_interval"`
	PeersPerRound     int           `toml:"peers_per_round" mapstructure:"peers_per_round"`
	MaxRequestNodes   int           `toml:"max_request_nodes" mapstructure:"max_request_nodes"`
	MaxPendingNodes   int           `toml:"max_pending_nodes" mapstructure:"max_pending_nodes"`
	FailureCacheSize  int           `toml:"failure_cache_size" mapstructure:"failure_cache_size"`
}

// DefaultConfig returns the stock acquisition parameters.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        6,
		RetryInterval:     3 * time.Second,
		AcquireDeadline:   2 * time.Minute,
		ReacquireInterval: 600 * time.Second,
		PeersPerRound:     2,
		MaxRequestNodes:   128,
		MaxPendingNodes:   1 << 14,
		FailureCacheSize:  4096,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.AcquireDeadline <= 0 {
		c.AcquireDeadline = d.AcquireDeadline
	}
	if c.ReacquireInterval <= 0 {
		c.ReacquireInterval = d.ReacquireInterval
	}
	if c.PeersPerRound <= 0 {
		c.PeersPerRound = d.PeersPerRound
	}
	if c.MaxRequestNodes <= 0 {
		c.MaxRequestNodes = d.MaxRequestNodes
	}
	if c.MaxPendingNodes <= 0 {
		c.MaxPendingNodes = d.MaxPendingNodes
	}
	if c.FailureCacheSize <= 0 {
		c.FailureCacheSize = d.FailureCacheSize
	}
	return c
}
