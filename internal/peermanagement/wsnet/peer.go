package wsnet

import (
	"context"
	"sync"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/peermanagement/message"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Peer is one websocket connection.
type Peer struct {
	id      types.PeerID
	addr    string
	inbound bool

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}

	createdAt time.Time
	log       zerolog.Logger
}

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID      types.PeerID
	Address string
	Inbound bool
	Since   time.Time
}

func newPeer(id types.PeerID, addr string, inbound bool, conn *websocket.Conn, cfg Config, logger zerolog.Logger) *Peer {
	return &Peer{
		id:        id,
		addr:      addr,
		inbound:   inbound,
		conn:      conn,
		send:      make(chan []byte, cfg.SendBufferSize),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.RequestBurst),
		closed:    make(chan struct{}),
		createdAt: time.Now(),
		log:       logger.With().Stringer("peer", id).Str("addr", addr).Logger(),
	}
}

func (p *Peer) ID() types.PeerID { return p.id }

func (p *Peer) Info() PeerInfo {
	return PeerInfo{ID: p.id, Address: p.addr, Inbound: p.inbound, Since: p.createdAt}
}

// Close shuts the connection. It is safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.conn.Close()
	})
}

// enqueue queues a frame without blocking past ctx.
func (p *Peer) enqueue(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return ErrConnectionClosed
	default:
	}
	select {
	case p.send <- frame:
		return nil
	case <-p.closed:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendQueueFull
	}
}

// admit applies the inbound request limit. Only requests that make this
// node do work are limited.
func (p *Peer) admit(msg message.Message) bool {
	if msg.Type() != message.TypeGetLedger {
		return true
	}
	return p.limiter.Allow()
}

// readLoop decodes frames and hands them to handle until the connection
// fails.
func (p *Peer) readLoop(ctx context.Context, handle func(message.Message)) {
	defer p.Close()

	p.conn.SetReadLimit(DefaultReadLimit)
	for {
		kind, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Debug().Err(err).Msg("Peer read failed")
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		msg, err := message.Decode(frame)
		if err != nil {
			p.log.Info().Err(err).Msg("Undecodable frame, disconnecting")
			return
		}
		if !p.admit(msg) {
			p.log.Debug().Stringer("type", msg.Type()).Msg("Request rate exceeded")
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		handle(msg)
	}
}

// writeLoop sends queued frames and keepalive pings.
func (p *Peer) writeLoop(ctx context.Context, cfg Config) {
	defer p.Close()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(cfg.WriteTimeout))
			return
		case <-p.closed:
			return
		case frame := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				p.log.Debug().Err(err).Msg("Peer write failed")
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				p.log.Debug().Err(err).Msg("Peer ping failed")
				return
			}
		}
	}
}
