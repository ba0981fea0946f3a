package wsnet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/peermanagement/message"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	peer types.PeerID
	msg  message.Message
}

type chanHandler struct {
	ch  chan delivery
	err error
}

func newChanHandler() *chanHandler {
	return &chanHandler{ch: make(chan delivery, 16)}
}

func (h *chanHandler) HandleMessage(_ context.Context, peer types.PeerID, msg message.Message) error {
	h.ch <- delivery{peer, msg}
	return h.err
}

func (h *chanHandler) next(t *testing.T) delivery {
	t.Helper()
	select {
	case d := <-h.ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("no message delivered")
		return delivery{}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Listen = ""
	return cfg
}

// pair connects a client overlay to a server overlay behind httptest.
func pair(t *testing.T, serverHandler, clientHandler Handler) (server, client *Overlay) {
	t.Helper()
	var err error
	server, err = New(testConfig(), serverHandler, zerolog.Nop())
	require.NoError(t, err)
	client, err = New(testConfig(), clientHandler, zerolog.Nop())
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle(PeerPath, server)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		client.Stop()
		server.Stop()
		srv.Close()
	})

	addr := strings.TrimPrefix(srv.URL, "http://")
	require.NoError(t, client.Connect(context.Background(), addr))
	require.ErrorIs(t, client.Connect(context.Background(), addr), ErrAlreadyConnected)
	require.Eventually(t, func() bool { return server.PeerCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	return server, client
}

func TestMessagesFlowBothWays(t *testing.T) {
	sh, ch := newChanHandler(), newChanHandler()
	server, client := pair(t, sh, ch)

	toServer := client.ActivePeers()
	require.Len(t, toServer, 1)
	req := &message.GetLedger{LedgerHash: make([]byte, 32), LedgerSeq: 5, RequestCookie: 1}
	require.NoError(t, client.Send(context.Background(), toServer[0], req))

	d := sh.next(t)
	assert.Equal(t, req, d.msg)

	reply := &message.LedgerData{LedgerHash: make([]byte, 32), LedgerSeq: 5, RequestCookie: 1, Error: message.ReplyErrorNoLedger}
	require.NoError(t, server.Send(context.Background(), d.peer, reply))
	assert.Equal(t, reply, ch.next(t).msg)

	assert.Equal(t, 1, client.Broadcast(context.Background(), &message.Ping{Seq: 2}))
	assert.Equal(t, uint32(2), sh.next(t).msg.(*message.Ping).Seq)

	infos := server.Peers()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Inbound)
}

func TestDisconnectRunsHook(t *testing.T) {
	sh := newChanHandler()
	server, client := pair(t, sh, newChanHandler())

	var mu sync.Mutex
	var gone []types.PeerID
	server.SetDisconnectHook(func(p types.PeerID) {
		mu.Lock()
		gone = append(gone, p)
		mu.Unlock()
	})
	serverSide := server.ActivePeers()[0]

	client.Disconnect(client.ActivePeers()[0])
	require.Eventually(t, func() bool { return client.PeerCount() == 0 && server.PeerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []types.PeerID{serverSide}, gone)
	mu.Unlock()

	err := client.Send(context.Background(), 42, &message.Ping{})
	require.ErrorIs(t, err, ErrPeerNotFound)
}

func TestHandlerErrorDisconnects(t *testing.T) {
	sh := newChanHandler()
	sh.err = errors.New("malformed")
	server, client := pair(t, sh, newChanHandler())

	require.NoError(t, client.Send(context.Background(), client.ActivePeers()[0], &message.Ping{}))
	sh.next(t)
	require.Eventually(t, func() bool { return server.PeerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestMaxPeers(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPeers = 1
	server, err := New(cfg, newChanHandler(), zerolog.Nop())
	require.NoError(t, err)
	srv := httptest.NewServer(server)
	defer srv.Close()
	defer server.Stop()

	addr := strings.TrimPrefix(srv.URL, "http://")
	for i := 0; i < 2; i++ {
		c, err := New(testConfig(), newChanHandler(), zerolog.Nop())
		require.NoError(t, err)
		defer c.Stop()
		err = c.Connect(context.Background(), addr)
		if i == 0 {
			require.NoError(t, err)
			require.Eventually(t, func() bool { return server.PeerCount() == 1 }, 5*time.Second, 10*time.Millisecond)
		} else {
			require.Error(t, err)
		}
	}
}

func TestRequestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RequestRate = 0.001
	cfg.RequestBurst = 1
	p := newPeer(1, "test", true, nil, cfg, zerolog.Nop())

	assert.True(t, p.admit(&message.GetLedger{}))
	assert.False(t, p.admit(&message.GetLedger{}))
	assert.True(t, p.admit(&message.LedgerData{}))
	assert.True(t, p.admit(&message.Ping{}))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxPeers = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PingInterval = 0
	require.Error(t, cfg.Validate())

	_, err := New(cfg, nil, zerolog.Nop())
	require.Error(t, err)
}
