package scoring

import (
	"testing"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPeers []types.PeerID

func (s staticPeers) ActivePeers() []types.PeerID { return s }

func TestPeerScoreLatency(t *testing.T) {
	fast := NewPeerScore()
	slow := NewPeerScore()
	for i := 0; i < LatencyHistorySize; i++ {
		fast.RecordLatency(30 * time.Millisecond)
		slow.RecordLatency(600 * time.Millisecond)
	}
	assert.Equal(t, BaseScore+50, fast.Score())
	assert.False(t, fast.IsHighLatency())
	assert.Equal(t, BaseScore-25, slow.Score())
	assert.True(t, slow.IsHighLatency())
}

func TestPeerScoreBehavior(t *testing.T) {
	ps := NewPeerScore()
	for i := 0; i < 100; i++ {
		ps.RecordUseful()
	}
	assert.Equal(t, BaseScore+10, ps.Score())

	ps.RecordInvalid()
	assert.Equal(t, BaseScore-50, ps.Score())

	for i := 0; i < 20; i++ {
		ps.RecordInvalid()
		ps.RecordTimeout()
	}
	assert.Equal(t, MinScore, ps.Score())

	st := ps.Stats()
	assert.Equal(t, 100, st.UsefulReplies)
	assert.Equal(t, 21, st.InvalidReplies)
	assert.Equal(t, 20, st.Timeouts)
}

func TestConsumerDecay(t *testing.T) {
	clock := time.Unix(0, 0)
	c := newConsumer(func() time.Time { return clock })

	assert.Equal(t, 200, c.Charge(ChargeHigh))
	clock = clock.Add(1500 * time.Millisecond)
	assert.Equal(t, 100+10, c.Charge(ChargeLow))
	clock = clock.Add(10 * time.Second)
	assert.Zero(t, c.Usage())
	assert.False(t, c.ShouldDisconnect())
}

func TestBoardDropsMisbehavingPeer(t *testing.T) {
	var dropped []types.PeerID
	b := NewBoard(staticPeers{1, 2}, func(p types.PeerID) { dropped = append(dropped, p) }, zerolog.Nop())
	clock := time.Unix(0, 0)
	b.now = func() time.Time { return clock }

	for i := 0; i < DefaultChargeLimit/ChargeInvalid.Amount()-1; i++ {
		b.ChargeInvalidData(1, "bad node")
	}
	require.Empty(t, dropped)
	b.ChargeInvalidData(1, "bad node")
	require.Equal(t, []types.PeerID{1}, dropped)
	assert.Equal(t, 0, b.Len())
}

func TestBoardRanks(t *testing.T) {
	b := NewBoard(staticPeers{1, 2, 3}, nil, zerolog.Nop())
	b.Score(3).RecordLatency(10 * time.Millisecond)
	b.Score(1).RecordInvalid()

	assert.Equal(t, []types.PeerID{3, 2, 1}, b.ActivePeers())
	assert.Equal(t, []types.PeerID{2, 4}, b.Rank([]types.PeerID{2, 4}))
}
