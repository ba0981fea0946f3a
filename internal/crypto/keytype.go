package crypto

// KeyType identifies the signature scheme of a public key.
type KeyType int

const (
	KeyTypeUnknown KeyType = iota
	KeyTypeSecp256k1
	KeyTypeEd25519
)

// PublicKeySize is the size of a serialized public key for both schemes.
const PublicKeySize = 33

const ed25519KeyPrefix = 0xED

// String returns the string representation of the key type.
func (kt KeyType) String() string {
	switch kt {
	case KeyTypeSecp256k1:
		return "secp256k1"
	case KeyTypeEd25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

// PublicKeyType determines the key type from a public key's raw bytes.
//   - Ed25519: 33 bytes, 0xED followed by the 32-byte key
//   - secp256k1: 33 bytes compressed point, 0x02 or 0x03 first
func PublicKeyType(pubKey []byte) KeyType {
	if len(pubKey) != PublicKeySize {
		return KeyTypeUnknown
	}
	switch pubKey[0] {
	case ed25519KeyPrefix:
		return KeyTypeEd25519
	case 0x02, 0x03:
		return KeyTypeSecp256k1
	default:
		return KeyTypeUnknown
	}
}
