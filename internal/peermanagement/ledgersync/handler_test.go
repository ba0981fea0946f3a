package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/core/acquire"
	"github.com/LeJamon/goXRPLsync/internal/core/ledger"
	"github.com/LeJamon/goXRPLsync/internal/core/ledger/history"
	"github.com/LeJamon/goXRPLsync/internal/core/shamap"
	"github.com/LeJamon/goXRPLsync/internal/core/validations"
	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/jobqueue"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/message"
	"github.com/LeJamon/goXRPLsync/internal/peermanagement/scoring"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlineScheduler runs jobs at once and remembers their types.
type inlineScheduler struct {
	types []jobqueue.JobType
}

func (s *inlineScheduler) AddJob(t jobqueue.JobType, _ string, fn func()) bool {
	s.types = append(s.types, t)
	fn()
	return true
}

type received struct {
	peer  types.PeerID
	hash  types.Hash256
	nodes []acquire.NodeBlob
}

type fakeAcquirer struct {
	want types.Hash256
	got  []received
}

func (a *fakeAcquirer) GotLedgerData(peer types.PeerID, hash types.Hash256, nodes []acquire.NodeBlob) bool {
	a.got = append(a.got, received{peer, hash, nodes})
	return hash == a.want
}

type env struct {
	handler  *Handler
	sender   *MockSender
	history  *history.History
	acquirer *fakeAcquirer
	tracker  *validations.Tracker
	sched    *inlineScheduler
	scores   *scoring.Board
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctrl := gomock.NewController(t)
	hist, err := history.New(history.Config{}, zerolog.Nop())
	require.NoError(t, err)
	e := &env{
		sender:   NewMockSender(ctrl),
		history:  hist,
		acquirer: &fakeAcquirer{},
		tracker:  validations.New(validations.Config{Quorum: 1}, crypto.SignatureVerifier{}, zerolog.Nop()),
		sched:    &inlineScheduler{},
	}
	e.scores = scoring.NewBoard(nil, nil, zerolog.Nop())
	e.handler = NewHandler(DefaultConfig(), Deps{
		Sender:      e.sender,
		Ledgers:     hist,
		Acquirer:    e.acquirer,
		Validations: e.tracker,
		Scheduler:   e.sched,
		Scores:      e.scores,
	}, zerolog.Nop())
	return e
}

func makeLedger(t *testing.T, seq uint32, items int) *ledger.Ledger {
	t.Helper()
	sm := shamap.New(shamap.TypeState)
	for i := 0; i < items; i++ {
		key := crypto.Sha512Half([]byte(fmt.Sprintf("%d/%d", seq, i)))
		require.NoError(t, sm.Put(key, []byte(fmt.Sprintf("value %d", i))))
	}
	require.NoError(t, sm.SetImmutable())
	l, err := ledger.New(ledger.Header{Seq: seq}, sm)
	require.NoError(t, err)
	return l
}

// capture records the next message sent to peer.
func (e *env) capture(peer types.PeerID) *message.Message {
	var out message.Message
	e.sender.EXPECT().Send(gomock.Any(), peer, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ types.PeerID, msg message.Message) error {
			out = msg
			return nil
		})
	return &out
}

func TestServeGetLedger(t *testing.T) {
	e := newEnv(t)
	l := makeLedger(t, 12, 300)
	require.NoError(t, e.history.StoreLedger(l))

	sent := e.capture(5)
	require.NoError(t, e.handler.HandleMessage(context.Background(), 5, &message.GetLedger{
		LedgerHash:    l.Hash().Bytes(),
		RequestCookie: 77,
		QueryDepth:    1,
	}))
	assert.Equal(t, []jobqueue.JobType{jobqueue.JobLedgerRequest}, e.sched.types)

	reply, ok := (*sent).(*message.LedgerData)
	require.True(t, ok)
	assert.Equal(t, uint64(77), reply.RequestCookie)
	assert.Equal(t, uint32(12), reply.LedgerSeq)
	assert.Equal(t, message.ReplyErrorNone, reply.Error)
	require.Greater(t, len(reply.Nodes), 1)

	// The reply is exactly what a syncing map needs to start.
	target := shamap.NewSyncing(shamap.TypeState, l.Hash())
	for _, n := range reply.Nodes {
		id, err := shamap.NodeIDFromRawBytes(n.NodeID)
		require.NoError(t, err)
		assert.Equal(t, shamap.AddNodeUseful, target.AddNode(id, n.NodeData, nil))
	}
	root, err := l.StateMap().GetNode(shamap.RootNodeID)
	require.NoError(t, err)
	assert.Equal(t, root, reply.Nodes[0].NodeData)
}

func TestServeBySeqAndErrors(t *testing.T) {
	e := newEnv(t)
	l := makeLedger(t, 3, 10)
	require.NoError(t, e.history.StoreLedger(l))
	ctx := context.Background()

	sent := e.capture(1)
	require.NoError(t, e.handler.HandleMessage(ctx, 1, &message.GetLedger{LedgerSeq: 3}))
	reply := (*sent).(*message.LedgerData)
	assert.Equal(t, l.Hash().Bytes(), reply.LedgerHash)
	assert.Len(t, reply.Nodes, 1)

	sent = e.capture(1)
	require.NoError(t, e.handler.HandleMessage(ctx, 1, &message.GetLedger{LedgerHash: make([]byte, 32)}))
	assert.Equal(t, message.ReplyErrorNoLedger, (*sent).(*message.LedgerData).Error)

	sent = e.capture(1)
	require.NoError(t, e.handler.HandleMessage(ctx, 1, &message.GetLedger{
		LedgerHash: l.Hash().Bytes(),
		NodeIDs:    [][]byte{{1, 2, 3}},
	}))
	reply = (*sent).(*message.LedgerData)
	assert.Equal(t, message.ReplyErrorBadRequest, reply.Error)
	assert.Empty(t, reply.Nodes)

	err := e.handler.HandleMessage(ctx, 1, &message.GetLedger{LedgerHash: []byte{1}})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRequestReplyRoundTrip(t *testing.T) {
	e := newEnv(t)
	hash := crypto.Sha512Half([]byte("wanted"))
	e.acquirer.want = hash
	clock := time.Unix(100, 0)
	e.handler.now = func() time.Time { return clock }

	sent := e.capture(9)
	paths := []shamap.NodeID{shamap.RootNodeID, shamap.RootNodeID.ChildNodeID(4)}
	require.NoError(t, e.handler.RequestLedgerData(context.Background(), 9, hash, 50, paths))
	assert.Equal(t, 1, e.handler.PendingRequestCount())

	req := (*sent).(*message.GetLedger)
	assert.Equal(t, hash.Bytes(), req.LedgerHash)
	assert.Equal(t, uint32(50), req.LedgerSeq)
	require.Len(t, req.NodeIDs, 2)
	assert.Equal(t, paths[1].RawBytes(), req.NodeIDs[1])

	clock = clock.Add(40 * time.Millisecond)
	require.NoError(t, e.handler.HandleMessage(context.Background(), 9, &message.LedgerData{
		LedgerHash:    hash.Bytes(),
		LedgerSeq:     50,
		RequestCookie: req.RequestCookie,
		Nodes:         []message.LedgerNode{{NodeID: req.NodeIDs[0], NodeData: []byte{1, 2}}},
	}))
	assert.Zero(t, e.handler.PendingRequestCount())
	require.Len(t, e.acquirer.got, 1)
	assert.Equal(t, types.PeerID(9), e.acquirer.got[0].peer)
	assert.Equal(t, shamap.RootNodeID, e.acquirer.got[0].nodes[0].Path)
	assert.Equal(t, 40*time.Millisecond, e.scores.Score(9).Stats().AverageLatency)
	assert.Equal(t, 1, e.scores.Score(9).Stats().UsefulReplies)
}

func TestRequestSendFailure(t *testing.T) {
	e := newEnv(t)
	e.sender.EXPECT().Send(gomock.Any(), types.PeerID(2), gomock.Any()).Return(errors.New("closed"))
	err := e.handler.RequestLedgerData(context.Background(), 2, crypto.Sha512Half([]byte("x")), 1, []shamap.NodeID{shamap.RootNodeID})
	require.Error(t, err)
	assert.Zero(t, e.handler.PendingRequestCount())
}

func TestLedgerDataMalformed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.handler.HandleMessage(ctx, 3, &message.LedgerData{LedgerHash: []byte{1, 2}})
	require.ErrorIs(t, err, ErrMalformed)

	err = e.handler.HandleMessage(ctx, 3, &message.LedgerData{
		LedgerHash: make([]byte, 32),
		Nodes:      []message.LedgerNode{{NodeID: []byte{0}, NodeData: []byte{1}}},
	})
	require.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, 1, e.scores.Score(3).Stats().InvalidReplies)
	assert.Empty(t, e.acquirer.got)

	require.NoError(t, e.handler.HandleMessage(ctx, 3, &message.LedgerData{
		LedgerHash: make([]byte, 32),
		Error:      message.ReplyErrorNoLedger,
	}))
	assert.Empty(t, e.acquirer.got)
}

func TestValidationQueuedAndTracked(t *testing.T) {
	e := newEnv(t)
	kp, err := crypto.KeyPairFromSeed(crypto.KeyTypeSecp256k1, []byte("handler validator"))
	require.NoError(t, err)
	other, err := crypto.KeyPairFromSeed(crypto.KeyTypeEd25519, []byte("someone else"))
	require.NoError(t, err)
	e.tracker.SetTrusted(validations.NewTrustedSet(kp.NodeID()))

	prev := crypto.Sha512Half([]byte("prev"))
	v := &validations.Validation{
		LedgerHash:     crypto.Sha512Half([]byte("ledger")),
		LedgerSeq:      8,
		PreviousLedger: &prev,
		SignTime:       time.Unix(1_700_000_000, 0),
		Full:           true,
	}
	v.Sign(kp)

	msg := ValidationToMessage(v)
	back, err := ValidationFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, prev, *back.PreviousLedger)

	require.NoError(t, e.handler.HandleMessage(context.Background(), 4, msg))
	assert.Equal(t, []jobqueue.JobType{jobqueue.JobValidationTrusted}, e.sched.types)
	assert.True(t, e.tracker.IsFullyValidated(v.LedgerHash))

	u := &validations.Validation{LedgerHash: v.LedgerHash, LedgerSeq: 8, SignTime: v.SignTime}
	u.Sign(other)
	require.NoError(t, e.handler.HandleMessage(context.Background(), 4, ValidationToMessage(u)))
	assert.Equal(t, jobqueue.JobValidationUntrusted, e.sched.types[1])
	assert.Equal(t, 2, e.tracker.GetValidationCount(v.LedgerHash))

	bad := ValidationToMessage(v)
	bad.PreviousLedger = []byte{1}
	require.ErrorIs(t, e.handler.HandleMessage(context.Background(), 4, bad), ErrMalformed)
}

func TestPingPong(t *testing.T) {
	e := newEnv(t)
	sent := e.capture(6)
	require.NoError(t, e.handler.HandleMessage(context.Background(), 6, &message.Ping{PType: message.PingTypePing, Seq: 3}))
	pong := (*sent).(*message.Ping)
	assert.Equal(t, message.PingTypePong, pong.PType)
	assert.Equal(t, uint32(3), pong.Seq)

	// A pong is not answered; the mock fails on an unexpected Send.
	require.NoError(t, e.handler.HandleMessage(context.Background(), 6, pong))
}

func TestCleanupExpiredRequests(t *testing.T) {
	e := newEnv(t)
	clock := time.Unix(0, 0)
	e.handler.now = func() time.Time { return clock }
	e.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	hash := crypto.Sha512Half([]byte("slow"))
	require.NoError(t, e.handler.RequestLedgerData(context.Background(), 1, hash, 1, nil))
	clock = clock.Add(DefaultConfig().RequestTimeout / 2)
	require.NoError(t, e.handler.RequestLedgerData(context.Background(), 2, hash, 1, nil))

	clock = clock.Add(DefaultConfig().RequestTimeout/2 + time.Second)
	assert.Equal(t, 1, e.handler.CleanupExpiredRequests())
	assert.Equal(t, 1, e.handler.PendingRequestCount())
	assert.Equal(t, 1, e.scores.Score(1).Stats().Timeouts)
	assert.Zero(t, e.scores.Score(2).Stats().Timeouts)
}
