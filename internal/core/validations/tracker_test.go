package validations

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LeJamon/goXRPLsync/internal/crypto"
	"github.com/LeJamon/goXRPLsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validator struct {
	kp *crypto.KeyPair
}

func newValidator(t testing.TB, i int) validator {
	t.Helper()
	kt := crypto.KeyTypeSecp256k1
	if i%2 == 1 {
		kt = crypto.KeyTypeEd25519
	}
	kp, err := crypto.KeyPairFromSeed(kt, []byte(fmt.Sprintf("validator-%d", i)))
	require.NoError(t, err)
	return validator{kp: kp}
}

func (v validator) id() crypto.NodeID { return v.kp.NodeID() }

func (v validator) validate(hash types.Hash256, seq uint32) *Validation {
	val := &Validation{
		LedgerHash: hash,
		LedgerSeq:  seq,
		SignTime:   time.Unix(1_700_000_000, 0),
		Full:       true,
	}
	val.Sign(v.kp)
	return val
}

func ledgerHash(i int) types.Hash256 {
	return crypto.Sha512Half([]byte(fmt.Sprintf("ledger-%d", i)))
}

type fixture struct {
	tracker    *Tracker
	validators []validator
	now        time.Time
}

func newFixture(t *testing.T, n int, cfg Config) *fixture {
	t.Helper()
	f := &fixture{now: time.Unix(1_700_000_000, 0)}
	f.tracker = New(cfg, crypto.SignatureVerifier{}, zerolog.Nop())
	f.tracker.now = func() time.Time { return f.now }
	ts := TrustedSet{}
	for i := 0; i < n; i++ {
		v := newValidator(t, i)
		f.validators = append(f.validators, v)
		ts[v.id()] = 1
	}
	f.tracker.SetTrusted(ts)
	return f
}

func TestAddAcceptsSignedValidation(t *testing.T) {
	f := newFixture(t, 2, Config{Quorum: 2})
	for _, v := range f.validators {
		require.True(t, f.tracker.Add(v.validate(ledgerHash(1), 10), "peer"))
	}
	assert.Equal(t, 2, f.tracker.GetTrustedValidationCount(ledgerHash(1)))
	assert.True(t, f.tracker.IsFullyValidated(ledgerHash(1)))

	latest, ok := f.tracker.GetLatestValidation(f.validators[0].id())
	require.True(t, ok)
	assert.Equal(t, uint32(10), latest.LedgerSeq)
	assert.Equal(t, f.now, latest.SeenTime)
}

func TestAddRejectsWithoutSideEffect(t *testing.T) {
	f := newFixture(t, 1, Config{Quorum: 1})
	v := f.validators[0]
	require.True(t, f.tracker.Add(v.validate(ledgerHash(1), 10), "peer"))
	before := f.tracker.Stats()

	tampered := v.validate(ledgerHash(2), 11)
	tampered.LedgerSeq = 12

	wrongID := v.validate(ledgerHash(2), 11)
	wrongID.NodeID = newValidator(t, 5).id()

	tests := []struct {
		name string
		val  *Validation
	}{
		{"nil", nil},
		{"zero hash", &Validation{LedgerSeq: 11, PublicKey: v.kp.PublicKey()}},
		{"zero seq", &Validation{LedgerHash: ledgerHash(2), PublicKey: v.kp.PublicKey()}},
		{"no key", &Validation{LedgerHash: ledgerHash(2), LedgerSeq: 11}},
		{"bad signature", tampered},
		{"node id mismatch", wrongID},
		{"same seq", v.validate(ledgerHash(3), 10)},
		{"older seq", v.validate(ledgerHash(4), 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, f.tracker.Add(tt.val, "peer"))
			assert.Equal(t, before, f.tracker.Stats())
			assert.Equal(t, 1, f.tracker.GetValidationCount(ledgerHash(1)))
		})
	}
}

func TestSupersedeDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t, 3, Config{Quorum: 3})
	for _, v := range f.validators {
		require.True(t, f.tracker.Add(v.validate(ledgerHash(1), 10), "peer"))
	}
	require.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(2), 11), "peer"))

	assert.Equal(t, 2, f.tracker.GetTrustedValidationCount(ledgerHash(1)))
	assert.Equal(t, 1, f.tracker.GetTrustedValidationCount(ledgerHash(2)))
	assert.False(t, f.tracker.IsFullyValidated(ledgerHash(1)))
	assert.Equal(t, 3, f.tracker.Stats().LiveRecords)

	// Moving every node forward empties the old bucket.
	for _, v := range f.validators[1:] {
		require.True(t, f.tracker.Add(v.validate(ledgerHash(2), 11), "peer"))
	}
	assert.Equal(t, 0, f.tracker.GetValidationCount(ledgerHash(1)))
	assert.Equal(t, 1, f.tracker.Stats().LedgersTracked)
	assert.True(t, f.tracker.IsFullyValidated(ledgerHash(2)))
}

func TestTrustAndWeight(t *testing.T) {
	f := newFixture(t, 3, Config{Quorum: 4})
	untrusted := newValidator(t, 9)
	f.tracker.SetTrusted(TrustedSet{
		f.validators[0].id(): 3,
		f.validators[1].id(): 1,
		f.validators[2].id(): 1,
	})

	assert.True(t, f.tracker.IsTrusted(f.validators[0].kp.PublicKey()))
	assert.False(t, f.tracker.IsTrusted(untrusted.kp.PublicKey()))

	var fired []types.Hash256
	f.tracker.SetFullyValidatedCallback(func(h types.Hash256, seq uint32) {
		assert.Equal(t, uint32(20), seq)
		fired = append(fired, h)
	})

	require.True(t, f.tracker.Add(untrusted.validate(ledgerHash(1), 20), "peer"))
	assert.Equal(t, 1, f.tracker.GetValidationCount(ledgerHash(1)))
	assert.Equal(t, 0, f.tracker.GetTrustedValidationCount(ledgerHash(1)))
	assert.Empty(t, f.tracker.GetTrustedValidations(ledgerHash(1)))

	require.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(1), 20), "peer"))
	assert.Equal(t, uint64(3), f.tracker.GetTrustedWeight(ledgerHash(1)))
	assert.Empty(t, fired)

	require.True(t, f.tracker.Add(f.validators[1].validate(ledgerHash(1), 20), "peer"))
	require.True(t, f.tracker.Add(f.validators[2].validate(ledgerHash(1), 20), "peer"))
	assert.Equal(t, []types.Hash256{ledgerHash(1)}, fired)
	assert.Equal(t, uint64(5), f.tracker.GetTrustedWeight(ledgerHash(1)))
	assert.Len(t, f.tracker.GetTrustedValidations(ledgerHash(1)), 3)
	assert.Len(t, f.tracker.GetValidations(ledgerHash(1)), 4)
}

func TestTrustedCallback(t *testing.T) {
	f := newFixture(t, 1, Config{})
	var seen []uint32
	f.tracker.SetTrustedCallback(func(v *Validation) { seen = append(seen, v.LedgerSeq) })

	require.True(t, f.tracker.Add(newValidator(t, 7).validate(ledgerHash(1), 5), "peer"))
	require.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(1), 5), "peer"))
	assert.Equal(t, []uint32{5}, seen)
	assert.False(t, f.tracker.IsFullyValidated(ledgerHash(1)), "zero quorum never validates")
}

func TestGetValidationsReturnsCopies(t *testing.T) {
	f := newFixture(t, 1, Config{})
	require.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(1), 5), "peer"))

	vals := f.tracker.GetValidations(ledgerHash(1))
	require.Len(t, vals, 1)
	vals[0].LedgerSeq = 999
	vals[0].Signature[0] ^= 0xff

	again := f.tracker.GetValidations(ledgerHash(1))
	assert.Equal(t, uint32(5), again[0].LedgerSeq)
}

func TestGetNodesAfter(t *testing.T) {
	f := newFixture(t, 4, Config{})
	for _, v := range f.validators {
		require.True(t, f.tracker.Add(v.validate(ledgerHash(1), 10), "peer"))
	}
	assert.Equal(t, 0, f.tracker.GetNodesAfter(ledgerHash(1)))

	require.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(2), 11), "peer"))
	require.True(t, f.tracker.Add(f.validators[1].validate(ledgerHash(3), 12), "peer"))
	assert.Equal(t, 2, f.tracker.GetNodesAfter(ledgerHash(1)))
	assert.Equal(t, 1, f.tracker.GetNodesAfter(ledgerHash(2)))

	// Unknown hash: count records naming it as previous ledger.
	unknown := ledgerHash(100)
	next := f.validators[2].validate(ledgerHash(101), 13)
	next.PreviousLedger = &unknown
	next.Sign(f.validators[2].kp)
	require.True(t, f.tracker.Add(next, "peer"))
	assert.Equal(t, 1, f.tracker.GetNodesAfter(unknown))

	// Untrusted nodes never count.
	require.True(t, f.tracker.Add(newValidator(t, 8).validate(ledgerHash(9), 50), "peer"))
	assert.Equal(t, 3, f.tracker.GetNodesAfter(ledgerHash(1)))
}

func TestGetNodesAfterIgnoresUntrustedSequence(t *testing.T) {
	f := newFixture(t, 3, Config{})
	h := ledgerHash(1)

	require.True(t, f.tracker.Add(newValidator(t, 9).validate(h, 1), "peer"))
	for _, v := range f.validators {
		require.True(t, f.tracker.Add(v.validate(h, 100), "peer"))
	}
	assert.Equal(t, 0, f.tracker.GetNodesAfter(h))

	require.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(2), 101), "peer"))
	assert.Equal(t, 1, f.tracker.GetNodesAfter(h))
}

func TestUntrustedCannotMoveWindow(t *testing.T) {
	f := newFixture(t, 2, Config{WindowSize: 10})

	require.True(t, f.tracker.Add(newValidator(t, 9).validate(ledgerHash(9), 4_000_000_000), "peer"))
	assert.Zero(t, f.tracker.HighestSeq())

	require.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(1), 10), "peer"))
	assert.Equal(t, 1, f.tracker.GetTrustedValidationCount(ledgerHash(1)))
	assert.Equal(t, uint32(10), f.tracker.HighestSeq())

	f.tracker.Sweep()
	assert.Equal(t, 1, f.tracker.GetTrustedValidationCount(ledgerHash(1)))
	require.True(t, f.tracker.Add(f.validators[1].validate(ledgerHash(1), 10), "peer"))
	assert.Equal(t, 2, f.tracker.GetTrustedValidationCount(ledgerHash(1)))
}

func TestSweepFreshnessAndWindow(t *testing.T) {
	f := newFixture(t, 3, Config{Freshness: time.Minute, WindowSize: 10})
	v0, v1, v2 := f.validators[0], f.validators[1], f.validators[2]

	require.True(t, f.tracker.Add(v0.validate(ledgerHash(1), 100), "peer"))
	f.now = f.now.Add(2 * time.Minute)
	require.True(t, f.tracker.Add(v1.validate(ledgerHash(2), 105), "peer"))

	assert.Equal(t, 1, f.tracker.Sweep())
	_, ok := f.tracker.GetLatestValidation(v0.id())
	assert.False(t, ok)
	assert.Len(t, f.tracker.GetCurrentValidators(), 1)

	// Sequence history survives the sweep.
	assert.False(t, f.tracker.Add(v0.validate(ledgerHash(1), 100), "peer"))
	require.True(t, f.tracker.Add(v0.validate(ledgerHash(3), 101), "peer"))

	// Pushing the highest sequence forward puts older ledgers out of window.
	require.True(t, f.tracker.Add(v2.validate(ledgerHash(4), 120), "peer"))
	assert.Equal(t, 2, f.tracker.Sweep())
	assert.Equal(t, 1, f.tracker.Stats().LiveRecords)

	// Below the window is rejected even for a fresh node.
	assert.False(t, f.tracker.Add(newValidator(t, 6).validate(ledgerHash(5), 105), "peer"))
	assert.Equal(t, uint32(120), f.tracker.HighestSeq())
}

func TestFlushKeepsSequenceHistory(t *testing.T) {
	f := newFixture(t, 2, Config{})
	for _, v := range f.validators {
		require.True(t, f.tracker.Add(v.validate(ledgerHash(1), 10), "peer"))
	}
	flushed := f.tracker.Flush()
	assert.Len(t, flushed, 2)
	assert.Equal(t, 0, f.tracker.GetValidationCount(ledgerHash(1)))
	assert.Equal(t, 0, f.tracker.Stats().LiveRecords)

	assert.False(t, f.tracker.Add(f.validators[0].validate(ledgerHash(1), 10), "peer"))
	assert.True(t, f.tracker.Add(f.validators[0].validate(ledgerHash(2), 11), "peer"))
}

func TestConcurrentAddIsLinearizedPerNode(t *testing.T) {
	f := newFixture(t, 1, Config{})
	v := f.validators[0]
	vals := make([]*Validation, 50)
	for i := range vals {
		vals[i] = v.validate(ledgerHash(i), uint32(i+1))
	}

	var wg sync.WaitGroup
	for _, val := range vals {
		wg.Add(1)
		go func(val *Validation) {
			defer wg.Done()
			f.tracker.Add(val, "peer")
		}(val)
	}
	wg.Wait()

	latest, ok := f.tracker.GetLatestValidation(v.id())
	require.True(t, ok)
	assert.Equal(t, uint32(50), latest.LedgerSeq)
	assert.Equal(t, 1, f.tracker.Stats().LiveRecords)
	assert.Equal(t, 1, f.tracker.Stats().LedgersTracked)
}
