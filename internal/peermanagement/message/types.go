// Package message defines the messages peers exchange while synchronizing
// ledgers and their framing on the wire.
package message

// MessageType identifies a message on the wire.
type MessageType uint16

const (
	TypeUnknown    MessageType = 0
	TypePing       MessageType = 3
	TypeGetLedger  MessageType = 31
	TypeLedgerData MessageType = 32
	TypeValidation MessageType = 41
)

func (t MessageType) String() string {
	switch t {
	case TypePing:
		return "mtPING"
	case TypeGetLedger:
		return "mtGET_LEDGER"
	case TypeLedgerData:
		return "mtLEDGER_DATA"
	case TypeValidation:
		return "mtVALIDATION"
	default:
		return "mtUNKNOWN"
	}
}

// compressible reports whether payloads of this type are worth compressing.
func (t MessageType) compressible() bool {
	return t == TypeGetLedger || t == TypeLedgerData
}

// ReplyError tells a requester why a reply carries no nodes.
type ReplyError int32

const (
	ReplyErrorNone       ReplyError = 0
	ReplyErrorNoLedger   ReplyError = 1
	ReplyErrorNoNode     ReplyError = 2
	ReplyErrorBadRequest ReplyError = 3
)

func (e ReplyError) String() string {
	switch e {
	case ReplyErrorNone:
		return "none"
	case ReplyErrorNoLedger:
		return "noLedger"
	case ReplyErrorNoNode:
		return "noNode"
	case ReplyErrorBadRequest:
		return "badRequest"
	default:
		return "unknown"
	}
}

// PingType distinguishes a ping from its pong.
type PingType int32

const (
	PingTypePing PingType = 0
	PingTypePong PingType = 1
)
