// Package ledger defines a sealed ledger: a header plus the immutable state
// map whose root hash identifies it.
package ledger

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

var (
	ErrNotSealed    = errors.New("state map is not immutable")
	ErrHashMismatch = errors.New("ledger hash does not match state root")
)

// Header describes a ledger. Hash equals the root hash of the state map.
type Header struct {
	Seq        uint32
	ParentHash types.Hash256
	CloseTime  time.Time
	Hash       types.Hash256
}

// Ledger is immutable once constructed apart from the validated flag,
// which only ever goes from false to true.
type Ledger struct {
	header    Header
	state     *shamap.SHAMap
	validated atomic.Bool
}

// New seals state under header. A zero header hash is filled in from the
// state root; a non-zero one must match it.
func New(header Header, state *shamap.SHAMap) (*Ledger, error) {
	if state == nil || state.State() != shamap.StateImmutable {
		return nil, ErrNotSealed
	}
	root := state.Hash()
	if header.Hash.IsZero() {
		header.Hash = root
	} else if header.Hash != root {
		return nil, fmt.Errorf("%w: header %s, state %s", ErrHashMismatch, header.Hash.Short(), root.Short())
	}
	return &Ledger{header: header, state: state}, nil
}

func (l *Ledger) Header() Header { return l.header }
func (l *Ledger) Seq() uint32 { return l.header.Seq }
func (l *Ledger) Hash() types.Hash256 { return l.header.Hash }
func (l *Ledger) ParentHash() types.Hash256 { return l.header.ParentHash }
func (l *Ledger) CloseTime() time.Time { return l.header.CloseTime }
func (l *Ledger) StateMap() *shamap.SHAMap { return l.state }
func (l *Ledger) IsValidated() bool { return l.validated.Load() }
func (l *Ledger) MarkValidated() { l.validated.Store(true) }

func (l *Ledger) String() string {
	return fmt.Sprintf("ledger %d (%s)", l.header.Seq, l.header.Hash.Short())
}
