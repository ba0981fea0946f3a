package crypto

import (
	"crypto/ed25519"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ErrUnsupportedKeyType is returned for an unknown key scheme.
var ErrUnsupportedKeyType = errors.New("unsupported key type")

// KeyPair signs messages in the format SignatureVerifier accepts.
type KeyPair struct {
	keyType KeyType
	secp    *btcec.PrivateKey
	ed      ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh random key pair of the given type.
func GenerateKeyPair(kt KeyType) (*KeyPair, error) {
	switch kt {
	case KeyTypeSecp256k1:
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, err
		}
		return &KeyPair{keyType: kt, secp: priv}, nil
	case KeyTypeEd25519:
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, err
		}
		return &KeyPair{keyType: kt, ed: priv}, nil
	default:
		return nil, ErrUnsupportedKeyType
	}
}

// KeyPairFromSeed derives a deterministic key pair from seed.
func KeyPairFromSeed(kt KeyType, seed []byte) (*KeyPair, error) {
	material := Sha512Half(seed)
	switch kt {
	case KeyTypeSecp256k1:
		priv, _ := btcec.PrivKeyFromBytes(material[:])
		return &KeyPair{keyType: kt, secp: priv}, nil
	case KeyTypeEd25519:
		return &KeyPair{keyType: kt, ed: ed25519.NewKeyFromSeed(material[:])}, nil
	default:
		return nil, ErrUnsupportedKeyType
	}
}

// Type returns the key scheme.
func (k *KeyPair) Type() KeyType { return k.keyType }

// PublicKey returns the 33-byte serialized public key.
func (k *KeyPair) PublicKey() []byte {
	if k.keyType == KeyTypeEd25519 {
		pub := k.ed.Public().(ed25519.PublicKey)
		return append([]byte{ed25519KeyPrefix}, pub...)
	}
	return k.secp.PubKey().SerializeCompressed()
}

// NodeID returns the node ID derived from the public key.
func (k *KeyPair) NodeID() NodeID {
	return CalcNodeID(k.PublicKey())
}

// Sign signs msg. secp256k1 signatures are DER encoded with low S.
func (k *KeyPair) Sign(msg []byte) []byte {
	if k.keyType == KeyTypeEd25519 {
		return ed25519.Sign(k.ed, msg)
	}
	digest := Sha512Half(msg)
	return btcecdsa.Sign(k.secp, digest[:]).Serialize()
}
