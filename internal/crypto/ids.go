package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/crypto/ripemd160"
)

// NodeIDSize is the size of a validator node ID in bytes.
const NodeIDSize = 20

// NodeID is the short identifier of a validator: RIPEMD160(SHA256(pubkey)).
type NodeID [NodeIDSize]byte

// CalcNodeID computes the node ID of a public key. The full key including
// its scheme prefix is hashed.
func CalcNodeID(publicKey []byte) NodeID {
	sum := sha256.Sum256(publicKey)

	h := ripemd160.New()
	h.Write(sum[:])

	var id NodeID
	copy(id[:], h.Sum(nil))
	return id
}

// IsZero reports whether the ID is unset.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// String returns the upper-case hex form of the ID.
func (id NodeID) String() string {
	return strings.ToUpper(hex.EncodeToString(id[:]))
}
