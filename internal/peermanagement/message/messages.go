package message

// Message is implemented by every peer message.
type Message interface {
	Type() MessageType
}

// Ping is a keepalive; the receiver echoes Seq back in a pong.
type Ping struct {
	PType    PingType `codec:"type"`
	Seq      uint32   `codec:"seq,omitempty"`
	PingTime uint64   `codec:"ping_time,omitempty"`
}

func (p *Ping) Type() MessageType { return TypePing }

// GetLedger asks for state map nodes of one ledger. Each entry of NodeIDs
// is a 33 byte node position; QueryDepth asks for that many levels below
// each requested node as well.
type GetLedger struct {
	LedgerHash    []byte   `codec:"ledger_hash"`
	LedgerSeq     uint32   `codec:"ledger_seq,omitempty"`
	NodeIDs       [][]byte `codec:"node_ids,omitempty"`
	RequestCookie uint64   `codec:"request_cookie,omitempty"`
	QueryDepth    uint32   `codec:"query_depth,omitempty"`
}

func (g *GetLedger) Type() MessageType { return TypeGetLedger }

// LedgerNode is one node in wire form with its position.
type LedgerNode struct {
	NodeID   []byte `codec:"nodeid"`
	NodeData []byte `codec:"nodedata"`
}

// LedgerData answers a GetLedger.
type LedgerData struct {
	LedgerHash    []byte       `codec:"ledger_hash"`
	LedgerSeq     uint32       `codec:"ledger_seq"`
	Nodes         []LedgerNode `codec:"nodes,omitempty"`
	RequestCookie uint64       `codec:"request_cookie,omitempty"`
	Error         ReplyError   `codec:"error,omitempty"`
}

func (l *LedgerData) Type() MessageType { return TypeLedgerData }

// Validation carries one signed validation.
type Validation struct {
	PublicKey      []byte `codec:"public_key"`
	LedgerHash     []byte `codec:"ledger_hash"`
	LedgerSeq      uint32 `codec:"ledger_seq"`
	PreviousLedger []byte `codec:"previous_ledger,omitempty"`
	SignTime       uint64 `codec:"sign_time"`
	Full           bool   `codec:"full,omitempty"`
	Signature      []byte `codec:"signature"`
}

func (v *Validation) Type() MessageType { return TypeValidation }

// newMessage returns an empty message of type t, or nil if t is unknown.
func newMessage(t MessageType) Message {
	switch t {
	case TypePing:
		return &Ping{}
	case TypeGetLedger:
		return &GetLedger{}
	case TypeLedgerData:
		return &LedgerData{}
	case TypeValidation:
		return &Validation{}
	default:
		return nil
	}
}
