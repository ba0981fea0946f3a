package compression

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4"
)

// maxDecompressedSize guards against corrupt size headers.
const maxDecompressedSize = 64 << 20

// NoCompressor stores data as is.
type NoCompressor struct{}

func (NoCompressor) Name() string { return "none" }

func (NoCompressor) Compress(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

func (NoCompressor) Decompress(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

// LZ4Compressor stores an LZ4 block prefixed with the uncompressed size as a
// uvarint.
type LZ4Compressor struct{}

var hashTables = sync.Pool{
	New: func() any { return make([]int, 1<<16) },
}

func (*LZ4Compressor) Name() string { return "lz4" }

// Compress returns ErrIncompressible when the block would not be smaller.
func (*LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrIncompressible
	}
	out := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	n := binary.PutUvarint(out, uint64(len(data)))

	table := hashTables.Get().([]int)
	defer hashTables.Put(table)
	for i := range table {
		table[i] = 0
	}

	size, err := lz4.CompressBlock(data, out[n:], table)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if size == 0 || n+size >= len(data) {
		return nil, ErrIncompressible
	}
	return out[:n+size], nil
}

func (*LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, errors.New("lz4: bad size header")
	}
	if size > maxDecompressedSize {
		return nil, fmt.Errorf("lz4: size %d too large", size)
	}
	out := make([]byte, size)
	got, err := lz4.UncompressBlock(data[n:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if uint64(got) != size {
		return nil, fmt.Errorf("lz4: got %d bytes, want %d", got, size)
	}
	return out, nil
}
