package crypto

import "math/big"

var (
	secp256k1Order, _  = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
	secp256k1HalfOrder = new(big.Int).Rsh(secp256k1Order, 1)
)

// IsFullyCanonical reports whether a DER encoded secp256k1 signature uses a
// strict encoding with R and S in [1, N-1] and S <= N/2. Only such signatures
// are accepted on validations; the high-S twin of a valid signature would
// otherwise verify too.
func IsFullyCanonical(sig []byte) bool {
	if len(sig) < 8 || len(sig) > 72 || sig[0] != 0x30 || int(sig[1]) != len(sig)-2 {
		return false
	}
	r, rest, ok := derInt(sig[2:])
	if !ok {
		return false
	}
	s, rest, ok := derInt(rest)
	if !ok || len(rest) != 0 {
		return false
	}
	for _, v := range []*big.Int{r, s} {
		if v.Sign() <= 0 || v.Cmp(secp256k1Order) >= 0 {
			return false
		}
	}
	return s.Cmp(secp256k1HalfOrder) <= 0
}

// derInt reads one minimally encoded, non-negative DER INTEGER.
func derInt(b []byte) (*big.Int, []byte, bool) {
	if len(b) < 3 || b[0] != 0x02 {
		return nil, nil, false
	}
	n := int(b[1])
	if n < 1 || n > 33 || len(b) < 2+n {
		return nil, nil, false
	}
	v := b[2 : 2+n]
	if v[0]&0x80 != 0 {
		return nil, nil, false
	}
	if v[0] == 0 && (n == 1 || v[1]&0x80 == 0) {
		return nil, nil, false
	}
	return new(big.Int).SetBytes(v), b[2+n:], true
}
