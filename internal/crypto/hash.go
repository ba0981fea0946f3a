// Package crypto provides the hashing and signature-verification capabilities
// consumed by the SHAMap and the validations tracker.
package crypto

import (
	"crypto/sha512"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// Hasher computes the content hash of a byte string.
type Hasher interface {
	Hash(data ...[]byte) types.Hash256
}

// Sha512Half returns the first 32 bytes of the SHA-512 digest of the
// concatenation of data.
func Sha512Half(data ...[]byte) types.Hash256 {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash256
	copy(out[:], h.Sum(nil)[:32])
	return out
}

// Sha512HalfHasher is the production Hasher.
type Sha512HalfHasher struct{}

// Hash implements Hasher.
func (Sha512HalfHasher) Hash(data ...[]byte) types.Hash256 {
	return Sha512Half(data...)
}

// DefaultHasher is used when a component is not given an explicit Hasher.
var DefaultHasher Hasher = Sha512HalfHasher{}
