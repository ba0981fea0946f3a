// Package protocol holds the hash domain prefixes shared by the tree, the
// ledger header and validations.
package protocol

// makeHashPrefix combines three ASCII characters into a 4-byte prefix with the last byte set to zero.
func makeHashPrefix(a, b, c byte) [4]byte {
	return [4]byte{a, b, c, 0}
}

// Hash domains. Every hashed object is prefixed so that no two kinds of
// object can ever share a digest.
var (
	HashPrefixTransactionID = makeHashPrefix('T', 'X', 'N') // transaction leaf without metadata
	HashPrefixTxNode        = makeHashPrefix('S', 'N', 'D') // transaction leaf with metadata
	HashPrefixLeafNode      = makeHashPrefix('M', 'L', 'N') // state leaf
	HashPrefixInnerNode     = makeHashPrefix('M', 'I', 'N') // inner node
	HashPrefixLedgerMaster  = makeHashPrefix('L', 'W', 'R') // ledger header
	HashPrefixValidation    = makeHashPrefix('V', 'A', 'L') // validation signing data
)
