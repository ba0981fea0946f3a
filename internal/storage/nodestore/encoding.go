package nodestore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore/compression"
	"github.com/LeJamon/goXRPLsync/internal/types"
)

// Stored values are laid out as [codec u8][type u32][ledger seq u32][payload].
const (
	encodedHeaderSize  = 1 + 4 + 4
	minCompressionSize = 128

	codecRaw byte = 0
	codecLZ4 byte = 1
)

// codec maps a configured compressor to the byte recorded in each value.
type codec struct {
	id         byte
	compressor compression.Compressor
}

func newCodec(name string) (codec, error) {
	c, err := compression.Get(name)
	if err != nil {
		return codec{}, err
	}
	switch c.Name() {
	case "lz4":
		return codec{id: codecLZ4, compressor: c}, nil
	default:
		return codec{id: codecRaw, compressor: c}, nil
	}
}

func (c codec) encode(node *Node) ([]byte, error) {
	id, payload := codecRaw, node.Data
	if c.id != codecRaw && len(node.Data) >= minCompressionSize {
		compressed, err := c.compressor.Compress(node.Data)
		switch {
		case err == nil:
			id, payload = c.id, compressed
		case !errors.Is(err, compression.ErrIncompressible):
			return nil, fmt.Errorf("compress %s: %w", node.Hash.Short(), err)
		}
	}

	out := make([]byte, encodedHeaderSize+len(payload))
	out[0] = id
	binary.BigEndian.PutUint32(out[1:5], uint32(node.Type))
	binary.BigEndian.PutUint32(out[5:9], node.LedgerSeq)
	copy(out[encodedHeaderSize:], payload)
	return out, nil
}

func decodeNode(key types.Hash256, value []byte) (*Node, error) {
	if len(value) < encodedHeaderSize {
		return nil, fmt.Errorf("%w: value of %d bytes", ErrDataCorrupt, len(value))
	}
	node := &Node{
		Type:      NodeType(binary.BigEndian.Uint32(value[1:5])),
		Hash:      key,
		LedgerSeq: binary.BigEndian.Uint32(value[5:9]),
	}
	payload := value[encodedHeaderSize:]

	switch value[0] {
	case codecRaw:
		node.Data = append([]byte(nil), payload...)
	case codecLZ4:
		c, err := compression.Get("lz4")
		if err != nil {
			return nil, err
		}
		data, err := c.Decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDataCorrupt, err)
		}
		node.Data = data
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrDataCorrupt, value[0])
	}
	return node, nil
}
