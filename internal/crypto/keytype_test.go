package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublicKeyType(t *testing.T) {
	key := func(prefix byte) []byte {
		k := make([]byte, PublicKeySize)
		k[0] = prefix
		return k
	}

	assert.Equal(t, KeyTypeEd25519, PublicKeyType(key(0xED)))
	assert.Equal(t, KeyTypeSecp256k1, PublicKeyType(key(0x02)))
	assert.Equal(t, KeyTypeSecp256k1, PublicKeyType(key(0x03)))
	assert.Equal(t, KeyTypeUnknown, PublicKeyType(key(0x04)))
	assert.Equal(t, KeyTypeUnknown, PublicKeyType([]byte{0xED}))
	assert.Equal(t, "ed25519", KeyTypeEd25519.String())
}
