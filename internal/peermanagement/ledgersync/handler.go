// Package ledgersync connects the peer transport to ledger acquisition and
// validation tracking. It serves GetLedger requests from local history,
// turns LedgerData replies into acquisition input, and queues validations.
package ledgersync

//go:generate mockgen -destination=mock_sender_test.go -package=ledgersync github.com/LeJamon/goXRPLsync/internal/peermanagement/ledgersync Sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/acquire"
	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/core/validations"
	"github.com/LeJamon/goXRPLsync/internal/jobqueue"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/message"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/scoring"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrQueueClosed = errors.New("job queue not accepting work")
)

// Sender delivers a message to one peer.
type Sender interface {
	Send(ctx context.Context, peer types.PeerID, msg message.Message) error
}

// LedgerSource looks up ledgers this node can serve.
type LedgerSource interface {
	GetLedgerByHash(hash types.Hash256) (*ledger.Ledger, bool)
	GetLedgerBySeq(seq uint32) (*ledger.Ledger, bool)
}

// DataSink accepts node data for ledgers being acquired.
type DataSink interface {
	GotLedgerData(peer types.PeerID, hash types.Hash256, nodes []acquire.NodeBlob) bool
}

// ValidationSink accepts validations.
type ValidationSink interface {
	Add(v *validations.Validation, source string) bool
	IsTrusted(publicKey []byte) bool
}

// Config bounds what the handler serves.
type Config struct {
	MaxQueryDepth  uint32        `toml:"max_query_depth" mapstructure:"max_query_depth"`
	MaxReplyNodes  int           `toml:"max_reply_nodes" mapstructure:"max_reply_nodes"`
	RequestTimeout time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		MaxQueryDepth:  2,
		MaxReplyNodes:  512,
		RequestTimeout: 10 * time.Second,
	}
}

// Deps are the handler's collaborators. Scores is optional.
type Deps struct {
	Sender      Sender
	Ledgers     LedgerSource
	Acquirer    DataSink
	Validations ValidationSink
	Scheduler   acquire.Scheduler
	Scores      *scoring.Board
}

type pendingRequest struct {
	peer types.PeerID
	hash types.Hash256
	sent time.Time
}

// Handler handles ledger synchronization messages.
type Handler struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	pending map[uint64]pendingRequest
	cookie  atomic.Uint64

	now func() time.Time
	log zerolog.Logger
}

func NewHandler(cfg Config, deps Deps, logger zerolog.Logger) *Handler {
	def := DefaultConfig()
	if cfg.MaxQueryDepth == 0 {
		cfg.MaxQueryDepth = def.MaxQueryDepth
	}
	if cfg.MaxReplyNodes <= 0 {
		cfg.MaxReplyNodes = def.MaxReplyNodes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	return &Handler{
		cfg:     cfg,
		deps:    deps,
		pending: make(map[uint64]pendingRequest),
		now:     time.Now,
		log:     logger,
	}
}

// SetDataSink sets where received ledger nodes go. The acquire master
// needs the handler as its Requester, so it is attached after both exist.
// Call before the handler receives messages.
func (h *Handler) SetDataSink(sink DataSink) {
	h.deps.Acquirer = sink
}

// RequestLedgerData asks peer for the nodes at paths of ledger hash.
func (h *Handler) RequestLedgerData(ctx context.Context, peer types.PeerID, hash types.Hash256, seq uint32, paths []shamap.NodeID) error {
	req := &message.GetLedger{
		LedgerHash:    hash.Bytes(),
		LedgerSeq:     seq,
		NodeIDs:       make([][]byte, 0, len(paths)),
		RequestCookie: h.cookie.Add(1),
	}
	for _, p := range paths {
		req.NodeIDs = append(req.NodeIDs, p.RawBytes())
	}

	h.mu.Lock()
	h.pending[req.RequestCookie] = pendingRequest{peer: peer, hash: hash, sent: h.now()}
	h.mu.Unlock()

	if err := h.deps.Sender.Send(ctx, peer, req); err != nil {
		h.mu.Lock()
		delete(h.pending, req.RequestCookie)
		h.mu.Unlock()
		return fmt.Errorf("request %s from %s: %w", hash.Short(), peer, err)
	}
	return nil
}

// HandleMessage dispatches one message received from peer. An error means
// the message was malformed; the caller decides what to do with the peer.
func (h *Handler) HandleMessage(ctx context.Context, peer types.PeerID, msg message.Message) error {
	switch m := msg.(type) {
	case *message.GetLedger:
		return h.handleGetLedger(ctx, peer, m)
	case *message.LedgerData:
		return h.handleLedgerData(peer, m)
	case *message.Validation:
		return h.handleValidation(peer, m)
	case *message.Ping:
		if m.PType == message.PingTypePing {
			return h.deps.Sender.Send(ctx, peer, &message.Ping{PType: message.PingTypePong, Seq: m.Seq, PingTime: m.PingTime})
		}
		return nil
	default:
		h.log.Debug().Stringer("peer", peer).Stringer("type", msg.Type()).Msg("Ignoring message")
		return nil
	}
}

func (h *Handler) handleGetLedger(ctx context.Context, peer types.PeerID, req *message.GetLedger) error {
	if len(req.LedgerHash) != 0 && len(req.LedgerHash) != 32 {
		return fmt.Errorf("%w: ledger hash of %d bytes", ErrMalformed, len(req.LedgerHash))
	}
	ok := h.deps.Scheduler.AddJob(jobqueue.JobLedgerRequest, "serveGetLedger", func() {
		reply := h.buildReply(req)
		if err := h.deps.Sender.Send(ctx, peer, reply); err != nil {
			h.log.Debug().Err(err).Stringer("peer", peer).Msg("Sending ledger data")
		}
	})
	if !ok {
		return ErrQueueClosed
	}
	return nil
}

// buildReply answers req from local history.
func (h *Handler) buildReply(req *message.GetLedger) *message.LedgerData {
	reply := &message.LedgerData{
		LedgerHash:    req.LedgerHash,
		LedgerSeq:     req.LedgerSeq,
		RequestCookie: req.RequestCookie,
	}

	var l *ledger.Ledger
	var found bool
	if len(req.LedgerHash) == 32 {
		l, found = h.deps.Ledgers.GetLedgerByHash(types.Hash256(req.LedgerHash))
	} else if req.LedgerSeq != 0 {
		l, found = h.deps.Ledgers.GetLedgerBySeq(req.LedgerSeq)
	}
	if !found {
		reply.Error = message.ReplyErrorNoLedger
		return reply
	}
	reply.LedgerHash = l.Hash().Bytes()
	reply.LedgerSeq = l.Seq()

	ids := req.NodeIDs
	if len(ids) == 0 {
		ids = [][]byte{shamap.RootNodeID.RawBytes()}
	}
	depth := int(min(req.QueryDepth, h.cfg.MaxQueryDepth))
	for _, raw := range ids {
		id, err := shamap.NodeIDFromRawBytes(raw)
		if err != nil {
			reply.Nodes = nil
			reply.Error = message.ReplyErrorBadRequest
			return reply
		}
		nodes, err := l.StateMap().GetNodeFat(id, depth)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if len(reply.Nodes) == h.cfg.MaxReplyNodes {
				return reply
			}
			reply.Nodes = append(reply.Nodes, message.LedgerNode{NodeID: n.ID.RawBytes(), NodeData: n.Data})
		}
	}
	if len(reply.Nodes) == 0 {
		reply.Error = message.ReplyErrorNoNode
	}
	return reply
}

func (h *Handler) handleLedgerData(peer types.PeerID, data *message.LedgerData) error {
	if len(data.LedgerHash) != 32 {
		return fmt.Errorf("%w: ledger hash of %d bytes", ErrMalformed, len(data.LedgerHash))
	}
	hash := types.Hash256(data.LedgerHash)

	h.mu.Lock()
	req, solicited := h.pending[data.RequestCookie]
	if solicited && req.peer == peer && req.hash == hash {
		delete(h.pending, data.RequestCookie)
	} else {
		solicited = false
	}
	h.mu.Unlock()
	if solicited && h.deps.Scores != nil {
		h.deps.Scores.Score(peer).RecordLatency(h.now().Sub(req.sent))
	}

	if data.Error != message.ReplyErrorNone {
		h.log.Debug().Stringer("peer", peer).Str("hash", hash.Short()).Stringer("error", data.Error).Msg("Peer cannot serve ledger")
		return nil
	}

	blobs := make([]acquire.NodeBlob, 0, len(data.Nodes))
	for _, n := range data.Nodes {
		id, err := shamap.NodeIDFromRawBytes(n.NodeID)
		if err != nil {
			if h.deps.Scores != nil {
				h.deps.Scores.ChargeInvalidData(peer, "bad node id")
			}
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		blobs = append(blobs, acquire.NodeBlob{Path: id, Data: n.NodeData})
	}
	if !h.deps.Acquirer.GotLedgerData(peer, hash, blobs) {
		h.log.Debug().Stringer("peer", peer).Str("hash", hash.Short()).Msg("Unwanted ledger data")
	} else if h.deps.Scores != nil && solicited {
		h.deps.Scores.Score(peer).RecordUseful()
	}
	return nil
}

func (h *Handler) handleValidation(peer types.PeerID, m *message.Validation) error {
	v, err := ValidationFromMessage(m)
	if err != nil {
		return err
	}
	jt := jobqueue.JobValidationUntrusted
	if h.deps.Validations.IsTrusted(v.PublicKey) {
		jt = jobqueue.JobValidationTrusted
	}
	source := peer.String()
	if !h.deps.Scheduler.AddJob(jt, "recvValidation", func() {
		h.deps.Validations.Add(v, source)
	}) {
		return ErrQueueClosed
	}
	return nil
}

// ValidationFromMessage converts a wire validation. The signature is not
// checked here.
func ValidationFromMessage(m *message.Validation) (*validations.Validation, error) {
	if len(m.LedgerHash) != 32 {
		return nil, fmt.Errorf("%w: ledger hash of %d bytes", ErrMalformed, len(m.LedgerHash))
	}
	v := &validations.Validation{
		PublicKey:  m.PublicKey,
		LedgerHash: types.Hash256(m.LedgerHash),
		LedgerSeq:  m.LedgerSeq,
		Signature:  m.Signature,
		SignTime:   time.Unix(int64(m.SignTime), 0),
		Full:       m.Full,
	}
	switch len(m.PreviousLedger) {
	case 0:
	case 32:
		prev := types.Hash256(m.PreviousLedger)
		v.PreviousLedger = &prev
	default:
		return nil, fmt.Errorf("%w: previous ledger of %d bytes", ErrMalformed, len(m.PreviousLedger))
	}
	return v, nil
}

// ValidationToMessage is the inverse of ValidationFromMessage.
func ValidationToMessage(v *validations.Validation) *message.Validation {
	m := &message.Validation{
		PublicKey:  v.PublicKey,
		LedgerHash: v.LedgerHash.Bytes(),
		LedgerSeq:  v.LedgerSeq,
		SignTime:   uint64(v.SignTime.Unix()),
		Full:       v.Full,
		Signature:  v.Signature,
	}
	if v.PreviousLedger != nil {
		m.PreviousLedger = v.PreviousLedger.Bytes()
	}
	return m
}

// CleanupExpiredRequests forgets requests older than the request timeout,
// counting each as a timeout against its peer, and returns how many went.
func (h *Handler) CleanupExpiredRequests() int {
	now := h.now()
	var expired []types.PeerID
	h.mu.Lock()
	for cookie, req := range h.pending {
		if now.Sub(req.sent) > h.cfg.RequestTimeout {
			delete(h.pending, cookie)
			expired = append(expired, req.peer)
		}
	}
	h.mu.Unlock()

	if h.deps.Scores != nil {
		for _, peer := range expired {
			h.deps.Scores.Score(peer).RecordTimeout()
		}
	}
	return len(expired)
}

// PendingRequestCount returns the number of unanswered requests.
func (h *Handler) PendingRequestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
