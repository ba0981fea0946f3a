package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	addresscodec "github.com/Peersyst/xrpl-go/address-codec"
)

// xrplAlphabet is the base58 alphabet of XRPL tokens.
const xrplAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

// ErrInvalidPublicKey is returned for a key that is neither a valid node
// public key token nor a hex encoded 33-byte key.
var ErrInvalidPublicKey = errors.New("invalid public key")

// EncodeNodePublicKey returns the Base58Check "n..." form of a validator
// public key.
func EncodeNodePublicKey(pubKey []byte) (string, error) {
	if PublicKeyType(pubKey) == KeyTypeUnknown {
		return "", ErrInvalidPublicKey
	}
	return addresscodec.EncodeNodePublicKey(pubKey)
}

// ParseNodePublicKey accepts a validator public key either as a node public
// key token (as published in validator lists) or as hex.
func ParseNodePublicKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPublicKey)
	}

	var raw []byte
	if strings.HasPrefix(s, "n") {
		// The codec panics on input outside its alphabet or with a bad
		// checksum, so both are checked before DecodeNodePublicKey.
		if strings.IndexFunc(s, func(r rune) bool { return !strings.ContainsRune(xrplAlphabet, r) }) >= 0 {
			return nil, fmt.Errorf("%w: not a base58 token", ErrInvalidPublicKey)
		}
		checked, err := addresscodec.Base58CheckDecode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
		}
		if checked[0] != addresscodec.NodePublicKeyPrefix {
			return nil, fmt.Errorf("%w: not a node public key", ErrInvalidPublicKey)
		}
		decoded, err := addresscodec.DecodeNodePublicKey(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
		}
		raw = decoded
	} else {
		decoded, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: not hex or node token", ErrInvalidPublicKey)
		}
		raw = decoded
	}

	if PublicKeyType(raw) == KeyTypeUnknown {
		return nil, fmt.Errorf("%w: unknown key type", ErrInvalidPublicKey)
	}
	return raw, nil
}
