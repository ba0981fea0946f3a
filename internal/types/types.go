// Package types holds the small value types shared by every layer of the
// synchronization core.
package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Hash256 is a 256-bit content hash. Ledger hashes, SHAMap node hashes and
// nodestore keys are all Hash256 values.
type Hash256 [32]byte

// ZeroHash is the all-zero hash.
var ZeroHash Hash256

// IsZero returns true if every byte of the hash is zero.
func (h Hash256) IsZero() bool {
	return h == ZeroHash
}

// String returns the upper-case hex form used in logs.
func (h Hash256) String() string {
	return strings.ToUpper(hex.EncodeToString(h[:]))
}

// Short returns the first 8 hex characters, for log lines.
func (h Hash256) Short() string {
	return strings.ToUpper(hex.EncodeToString(h[:4]))
}

// Bytes returns a copy of the hash as a slice.
func (h Hash256) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

// Hash256FromBytes converts a 32-byte slice into a Hash256.
func Hash256FromBytes(b []byte) (Hash256, error) {
	var h Hash256
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid hash length: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Hash256FromHex parses a 64 character hex string.
func Hash256FromHex(s string) (Hash256, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash256{}, fmt.Errorf("invalid hash hex: %w", err)
	}
	return Hash256FromBytes(b)
}

// PeerID identifies a connected peer for the lifetime of its connection.
type PeerID uint64

// String returns the peer ID in the form used by log lines.
func (p PeerID) String() string {
	return fmt.Sprintf("peer#%d", uint64(p))
}

// ErrInvalidLength is returned when a fixed-size value is decoded from a
// buffer of the wrong size.
var ErrInvalidLength = errors.New("invalid length")
