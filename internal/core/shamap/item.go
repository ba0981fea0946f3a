package shamap

import (
	"bytes"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

// Item is a key and its serialized payload, stored in a leaf.
type Item struct {
	key  types.Hash256
	data []byte
}

// NewItem creates an item holding a copy of data.
func NewItem(key types.Hash256, data []byte) *Item {
	return &Item{key: key, data: bytes.Clone(data)}
}

// Key returns the item key.
func (i *Item) Key() types.Hash256 {
	return i.key
}

// Data returns the item payload. Callers must not modify it.
func (i *Item) Data() []byte {
	return i.data
}

// Equal reports whether both items have the same key and payload.
func (i *Item) Equal(other *Item) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.key == other.key && bytes.Equal(i.data, other.data)
}
