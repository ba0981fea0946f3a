package wsnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/peermanagement/message"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Handler consumes messages received from peers.
type Handler interface {
	HandleMessage(ctx context.Context, peer types.PeerID, msg message.Message) error
}

// Overlay manages the websocket connections to other nodes.
type Overlay struct {
	cfg      Config
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	handler      Handler
	onDisconnect func(types.PeerID)

	peersMu sync.RWMutex
	peers   map[types.PeerID]*Peer
	nextID  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// New creates an overlay delivering messages to handler.
func New(cfg Config, handler Handler, logger zerolog.Logger) (*Overlay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Overlay{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		handler: handler,
		peers:   make(map[types.PeerID]*Peer),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger,
	}, nil
}

// SetHandler replaces the message handler. Call before Run.
func (o *Overlay) SetHandler(h Handler) {
	o.handler = h
}

// SetDisconnectHook sets fn to run after a peer is removed.
func (o *Overlay) SetDisconnectHook(fn func(types.PeerID)) {
	o.onDisconnect = fn
}

// Run listens for inbound peers and keeps configured peers connected until
// ctx is cancelled.
func (o *Overlay) Run(ctx context.Context) error {
	defer o.Stop()
	g, gctx := errgroup.WithContext(ctx)

	if o.cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle(PeerPath, o)
		srv := &http.Server{Addr: o.cfg.Listen, Handler: mux, ReadHeaderTimeout: o.cfg.ConnectTimeout}
		ln, err := net.Listen("tcp", o.cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", o.cfg.Listen, err)
		}
		o.log.Info().Str("addr", ln.Addr().String()).Msg("Peer listener started")
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), o.cfg.WriteTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if len(o.cfg.Peers) > 0 {
		g.Go(func() error { return o.dialLoop(gctx) })
	}

	<-gctx.Done()
	o.Stop()
	return g.Wait()
}

// dialLoop connects to every configured address not already connected.
func (o *Overlay) dialLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.RedialInterval)
	defer ticker.Stop()
	for {
		for _, addr := range o.cfg.Peers {
			if err := o.Connect(ctx, addr); err != nil && !errors.Is(err, ErrAlreadyConnected) {
				o.log.Debug().Err(err).Str("addr", addr).Msg("Connect failed")
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Stop closes every connection.
func (o *Overlay) Stop() {
	o.cancel()
	o.peersMu.RLock()
	list := make([]*Peer, 0, len(o.peers))
	for _, p := range o.peers {
		list = append(list, p)
	}
	o.peersMu.RUnlock()
	for _, p := range list {
		p.Close()
	}
}

// ServeHTTP upgrades an inbound peer connection.
func (o *Overlay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if o.PeerCount() >= o.cfg.MaxPeers {
		http.Error(w, ErrMaxPeersReached.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.log.Debug().Err(err).Str("addr", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}
	if _, err := o.addPeer(conn, r.RemoteAddr, true); err != nil {
		conn.Close()
	}
}

// Connect dials addr (host:port) and starts serving the connection.
func (o *Overlay) Connect(ctx context.Context, addr string) error {
	if o.isConnectedTo(addr) {
		return ErrAlreadyConnected
	}
	if o.PeerCount() >= o.cfg.MaxPeers {
		return ErrMaxPeersReached
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	defer cancel()
	conn, _, err := o.dialer.DialContext(ctx, "ws://"+addr+PeerPath, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if _, err := o.addPeer(conn, addr, false); err != nil {
		conn.Close()
		return err
	}
	return nil
}

func (o *Overlay) addPeer(conn *websocket.Conn, addr string, inbound bool) (*Peer, error) {
	id := types.PeerID(o.nextID.Add(1))
	p := newPeer(id, addr, inbound, conn, o.cfg, o.log)

	o.peersMu.Lock()
	if len(o.peers) >= o.cfg.MaxPeers {
		o.peersMu.Unlock()
		return nil, ErrMaxPeersReached
	}
	o.peers[id] = p
	count := len(o.peers)
	o.peersMu.Unlock()

	metricPeers.Set(float64(count))
	p.log.Info().Bool("inbound", inbound).Msg("Peer connected")

	go p.writeLoop(o.ctx, o.cfg)
	go func() {
		p.readLoop(o.ctx, func(msg message.Message) {
			metricMessages.WithLabelValues(msg.Type().String(), "in").Inc()
			if o.handler == nil {
				return
			}
			if err := o.handler.HandleMessage(o.ctx, id, msg); err != nil {
				p.log.Info().Err(err).Stringer("type", msg.Type()).Msg("Bad message, disconnecting")
				p.Close()
			}
		})
		o.removePeer(id)
	}()
	return p, nil
}

func (o *Overlay) removePeer(id types.PeerID) {
	o.peersMu.Lock()
	p, ok := o.peers[id]
	delete(o.peers, id)
	count := len(o.peers)
	o.peersMu.Unlock()
	if !ok {
		return
	}
	metricPeers.Set(float64(count))
	p.log.Info().Msg("Peer disconnected")
	if o.onDisconnect != nil {
		o.onDisconnect(id)
	}
}

// Send encodes msg and queues it for peer.
func (o *Overlay) Send(ctx context.Context, peer types.PeerID, msg message.Message) error {
	o.peersMu.RLock()
	p, ok := o.peers[peer]
	o.peersMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peer)
	}
	frame, err := message.Encode(msg)
	if err != nil {
		return err
	}
	if err := p.enqueue(ctx, frame); err != nil {
		return err
	}
	metricMessages.WithLabelValues(msg.Type().String(), "out").Inc()
	return nil
}

// Broadcast queues msg for every peer and returns how many accepted it.
func (o *Overlay) Broadcast(ctx context.Context, msg message.Message) int {
	n := 0
	for _, id := range o.ActivePeers() {
		if o.Send(ctx, id, msg) == nil {
			n++
		}
	}
	return n
}

// Disconnect closes the connection to peer.
func (o *Overlay) Disconnect(peer types.PeerID) {
	o.peersMu.RLock()
	p, ok := o.peers[peer]
	o.peersMu.RUnlock()
	if ok {
		p.Close()
	}
}

// ActivePeers returns the connected peer IDs in ascending order.
func (o *Overlay) ActivePeers() []types.PeerID {
	o.peersMu.RLock()
	out := make([]types.PeerID, 0, len(o.peers))
	for id := range o.peers {
		out = append(out, id)
	}
	o.peersMu.RUnlock()
	slices.Sort(out)
	return out
}

// Peers returns information about all connected peers.
func (o *Overlay) Peers() []PeerInfo {
	o.peersMu.RLock()
	defer o.peersMu.RUnlock()
	out := make([]PeerInfo, 0, len(o.peers))
	for _, p := range o.peers {
		out = append(out, p.Info())
	}
	slices.SortFunc(out, func(a, b PeerInfo) int { return int(a.ID) - int(b.ID) })
	return out
}

func (o *Overlay) PeerCount() int {
	o.peersMu.RLock()
	defer o.peersMu.RUnlock()
	return len(o.peers)
}

func (o *Overlay) isConnectedTo(addr string) bool {
	o.peersMu.RLock()
	defer o.peersMu.RUnlock()
	for _, p := range o.peers {
		if !p.inbound && p.addr == addr {
			return true
		}
	}
	return false
}
