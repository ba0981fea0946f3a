// Package validations tracks signed validator assertions about which ledger
// each validator last closed, and answers trust-weighted quorum queries.
package validations

import (
	"encoding/binary"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/protocol"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// Validation is one validator's signed statement that it closed LedgerHash
// at LedgerSeq.
type Validation struct {
	NodeID         crypto.NodeID
	PublicKey      []byte
	LedgerHash     types.Hash256
	LedgerSeq      uint32
	PreviousLedger *types.Hash256
	Signature      []byte
	SignTime       time.Time
	SeenTime       time.Time
	Full           bool
}

// SigningData returns the bytes covered by Signature.
func (v *Validation) SigningData() []byte {
	size := 4 + 32 + 4 + 8 + 1
	if v.PreviousLedger != nil {
		size += 32
	}
	buf := make([]byte, 0, size)
	buf = append(buf, protocol.HashPrefixValidation[:]...)
	buf = append(buf, v.LedgerHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, v.LedgerSeq)
	buf = binary.BigEndian.AppendUint64(buf, uint64(v.SignTime.Unix()))
	if v.Full {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	if v.PreviousLedger != nil {
		buf = append(buf, v.PreviousLedger[:]...)
	}
	return buf
}

// Sign fills in PublicKey, NodeID and Signature using kp.
func (v *Validation) Sign(kp *crypto.KeyPair) {
	v.PublicKey = kp.PublicKey()
	v.NodeID = kp.NodeID()
	v.Signature = kp.Sign(v.SigningData())
}

// Clone returns a deep copy.
func (v *Validation) Clone() *Validation {
	c := *v
	c.PublicKey = append([]byte(nil), v.PublicKey...)
	c.Signature = append([]byte(nil), v.Signature...)
	if v.PreviousLedger != nil {
		prev := *v.PreviousLedger
		c.PreviousLedger = &prev
	}
	return &c
}

// TrustedSet maps trusted validators to their weight.
type TrustedSet map[crypto.NodeID]uint64

// NewTrustedSet trusts each node with weight 1.
func NewTrustedSet(nodes ...crypto.NodeID) TrustedSet {
	ts := make(TrustedSet, len(nodes))
	for _, n := range nodes {
		ts[n] = 1
	}
	return ts
}

// Weight returns the weight of node, zero when untrusted.
func (ts TrustedSet) Weight(node crypto.NodeID) uint64 {
	return ts[node]
}

// TotalWeight sums the weight of every trusted node.
func (ts TrustedSet) TotalWeight() uint64 {
	var total uint64
	for _, w := range ts {
		total += w
	}
	return total
}
