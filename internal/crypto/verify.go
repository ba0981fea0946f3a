package crypto

import (
	"crypto/ed25519"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Verifier checks a signature over msg by the holder of pubKey.
type Verifier interface {
	Verify(pubKey, msg, sig []byte) bool
}

// SignatureVerifier verifies secp256k1 (DER, fully canonical, over the
// SHA-512 half of msg) and Ed25519 (over msg) signatures, selected by the
// public key prefix.
type SignatureVerifier struct{}

// Verify implements Verifier.
func (SignatureVerifier) Verify(pubKey, msg, sig []byte) bool {
	switch PublicKeyType(pubKey) {
	case KeyTypeSecp256k1:
		return verifySecp256k1(pubKey, msg, sig)
	case KeyTypeEd25519:
		if len(sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pubKey[1:]), msg, sig)
	default:
		return false
	}
}

func verifySecp256k1(pubKey, msg, sig []byte) bool {
	if !IsFullyCanonical(sig) {
		return false
	}
	pub, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := Sha512Half(msg)
	return parsed.Verify(digest[:], pub)
}

// AcceptAllVerifier accepts every signature. It is only meant for tests and
// simulations that do not carry real keys.
type AcceptAllVerifier struct{}

// Verify implements Verifier.
func (AcceptAllVerifier) Verify(_, _, _ []byte) bool { return true }
