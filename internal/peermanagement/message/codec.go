package message

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/storage/nodestore/compression"
	"github.com/ugorji/go/codec"
)

const (
	// HeaderSize is the size of a frame header: 4 bytes holding the
	// compression flag and a 26 bit payload size, then a 2 byte type.
	HeaderSize = 6

	// MaxPayloadSizeBits is the number of bits used for the payload size.
	MaxPayloadSizeBits = 26

	// MaxPayloadSize is the largest payload a header can describe.
	MaxPayloadSize = (1 << MaxPayloadSizeBits) - 1

	// MinCompressibleSize is the smallest payload worth compressing.
	MinCompressibleSize = 70

	compressedFlag = 0x80
)

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrInvalidHeader   = errors.New("invalid message header")
	ErrUnknownType     = errors.New("unknown message type")
	ErrTruncated       = errors.New("truncated message")
)

// Header is a parsed frame header.
type Header struct {
	PayloadSize uint32
	MessageType MessageType
	Compressed  bool
}

var (
	msgpack = &codec.MsgpackHandle{}
	lz4     compression.Compressor
)

func init() {
	msgpack.WriteExt = true
	c, err := compression.Get("lz4")
	if err != nil {
		panic(err)
	}
	lz4 = c
}

// EncodeHeader writes a header into buf, which must hold HeaderSize bytes.
func EncodeHeader(buf []byte, h Header) error {
	if h.PayloadSize > MaxPayloadSize {
		return ErrMessageTooLarge
	}
	if len(buf) < HeaderSize {
		return fmt.Errorf("buffer too small: need %d, got %d", HeaderSize, len(buf))
	}
	word := h.PayloadSize
	if h.Compressed {
		word |= compressedFlag << 24
	}
	binary.BigEndian.PutUint32(buf[0:4], word)
	binary.BigEndian.PutUint16(buf[4:6], uint16(h.MessageType))
	return nil
}

// DecodeHeader parses the header at the start of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrTruncated
	}
	word := binary.BigEndian.Uint32(buf[0:4])
	flags := buf[0] &^ (1<<(MaxPayloadSizeBits-24) - 1)
	if flags != 0 && flags != compressedFlag {
		return Header{}, fmt.Errorf("%w: flags %#x", ErrInvalidHeader, flags)
	}
	return Header{
		PayloadSize: word & MaxPayloadSize,
		MessageType: MessageType(binary.BigEndian.Uint16(buf[4:6])),
		Compressed:  flags == compressedFlag,
	}, nil
}

// Encode returns the framed wire form of msg. Ledger requests and replies
// are LZ4 compressed when that makes them smaller.
func Encode(msg Message) ([]byte, error) {
	var payload []byte
	if err := codec.NewEncoderBytes(&payload, msgpack).Encode(msg); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}

	h := Header{MessageType: msg.Type()}
	if msg.Type().compressible() && len(payload) >= MinCompressibleSize {
		if packed, err := lz4.Compress(payload); err == nil {
			payload = packed
			h.Compressed = true
		}
	}
	h.PayloadSize = uint32(len(payload))
	if len(payload) > MaxPayloadSize {
		return nil, ErrMessageTooLarge
	}

	frame := make([]byte, HeaderSize+len(payload))
	if err := EncodeHeader(frame, h); err != nil {
		return nil, err
	}
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Decode parses one complete frame.
func Decode(frame []byte) (Message, error) {
	h, err := DecodeHeader(frame)
	if err != nil {
		return nil, err
	}
	payload := frame[HeaderSize:]
	if uint32(len(payload)) != h.PayloadSize {
		return nil, fmt.Errorf("%w: payload %d bytes, header says %d", ErrTruncated, len(payload), h.PayloadSize)
	}
	msg := newMessage(h.MessageType)
	if msg == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, h.MessageType)
	}
	if h.Compressed {
		if payload, err = lz4.Decompress(payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", h.MessageType, err)
		}
	}
	if err := codec.NewDecoderBytes(payload, msgpack).Decode(msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.MessageType, err)
	}
	return msg, nil
}
