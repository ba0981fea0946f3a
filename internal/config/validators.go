package config

import (
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
)

// TrustedValidator is one [[validations.trusted]] entry.
type TrustedValidator struct {
	PublicKey string `toml:"public_key" mapstructure:"public_key"`
	Weight    uint64 `toml:"weight" mapstructure:"weight"`
}

// NodeID decodes the public key, given as a node public key token
// ("n9...") or hex, and derives the validator's node ID.
func (tv TrustedValidator) NodeID() (crypto.NodeID, error) {
	raw, err := crypto.ParseNodePublicKey(tv.PublicKey)
	if err != nil {
		return crypto.NodeID{}, fmt.Errorf("validator public key %q: %w", tv.PublicKey, err)
	}
	return crypto.CalcNodeID(raw), nil
}

// Weight defaults to one.
func (tv TrustedValidator) effectiveWeight() uint64 {
	if tv.Weight == 0 {
		return 1
	}
	return tv.Weight
}

func validateTrusted(list []TrustedValidator) error {
	seen := make(map[crypto.NodeID]int, len(list))
	for i, tv := range list {
		id, err := tv.NodeID()
		if err != nil {
			return fmt.Errorf("invalid trusted validator at index %d: %w", i, err)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("trusted validator at index %d duplicates index %d", i, prev)
		}
		seen[id] = i
	}
	return nil
}
