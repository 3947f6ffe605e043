package bundle

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAdvance(t *testing.T) {
	legal := map[Outcome][]Outcome{
		Built:       {SimulatedOk, SimulatedFail},
		SimulatedOk: {Submitted, SubmissionError},
		Submitted:   {Included, NotIncluded},
	}
	all := []Outcome{Built, SimulatedOk, SimulatedFail, Submitted, SubmissionError, Included, NotIncluded}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range legal[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, CanAdvance(from, to), "%s -> %s", from, to)
		}
		assert.Equal(t, len(legal[from]) == 0, from.Terminal(), "%s terminal", from)
	}
}

func TestLedgerLifecycle(t *testing.T) {
	l := NewLedger()
	h := common.HexToHash("0x01")

	require.NoError(t, l.Begin(h, 10))
	require.NoError(t, l.Advance(h, 10, SimulatedOk))
	require.NoError(t, l.Advance(h, 10, Submitted))

	assert.ErrorIs(t, l.Advance(h, 10, SimulatedOk), ErrOutcomeRegression)
	assert.ErrorIs(t, l.Advance(h, 10, Built), ErrOutcomeRegression)

	require.NoError(t, l.Advance(h, 10, Included))
	assert.ErrorIs(t, l.Advance(h, 10, NotIncluded), ErrOutcomeRegression)

	entry, ok := l.Get(h, 10)
	require.True(t, ok)
	assert.Equal(t, Included, entry.Outcome)
	assert.Equal(t, uint64(10), entry.TargetBlock)
}

func TestLedgerRejectsDuplicates(t *testing.T) {
	l := NewLedger()
	h := common.HexToHash("0x02")

	require.NoError(t, l.Begin(h, 10))
	require.NoError(t, l.Advance(h, 10, SimulatedFail))

	// a failed bundle stays known for its block
	assert.ErrorIs(t, l.Begin(h, 10), ErrDuplicateBundle)
	assert.True(t, l.Has(h, 10))
	assert.Equal(t, 1, l.Len())
}

func TestLedgerSamePayloadLaterBlock(t *testing.T) {
	l := NewLedger()
	h := common.HexToHash("0x02")

	require.NoError(t, l.Begin(h, 10))
	require.NoError(t, l.Advance(h, 10, SimulatedOk))
	require.NoError(t, l.Advance(h, 10, Submitted))
	require.NoError(t, l.Advance(h, 10, NotIncluded))

	require.NoError(t, l.Begin(h, 11))
	assert.False(t, l.Has(h, 12))
	assert.Equal(t, 2, l.Len())

	old, _ := l.Get(h, 10)
	retry, _ := l.Get(h, 11)
	assert.Equal(t, NotIncluded, old.Outcome)
	assert.Equal(t, Built, retry.Outcome)
}

func TestLedgerSkipStage(t *testing.T) {
	l := NewLedger()
	h := common.HexToHash("0x03")
	require.NoError(t, l.Begin(h, 1))
	assert.ErrorIs(t, l.Advance(h, 1, Submitted), ErrOutcomeRegression)
	assert.Error(t, l.Advance(common.HexToHash("0x04"), 1, SimulatedOk))
	assert.Error(t, l.Advance(h, 2, SimulatedOk))
}

func TestLedgerConcurrentBegin(t *testing.T) {
	l := NewLedger()
	h := common.HexToHash("0x05")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Begin(h, 1) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func signedTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	to := common.HexToAddress("0x01")
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(1)), &types.LegacyTx{
		Nonce: nonce, To: &to, Value: big.NewInt(0), Gas: 21000, GasPrice: big.NewInt(1e9),
	})
	require.NoError(t, err)
	return tx
}

func TestBundleHash(t *testing.T) {
	a, b := signedTx(t, 0), signedTx(t, 1)

	b1, err := New([]*types.Transaction{a, b}, 100)
	require.NoError(t, err)
	b2, err := New([]*types.Transaction{a, b}, 101)
	require.NoError(t, err)
	b3, err := New([]*types.Transaction{b, a}, 100)
	require.NoError(t, err)

	assert.Equal(t, b1.Hash(), b2.Hash())
	assert.NotEqual(t, b1.Hash(), b3.Hash())
	assert.Equal(t, crypto.Keccak256Hash(append(a.Hash().Bytes(), b.Hash().Bytes()...)), b1.Hash())

	raw, err := b1.RawTransactions()
	require.NoError(t, err)
	require.Len(t, raw, 2)
	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(raw[0]))
	assert.Equal(t, a.Hash(), decoded.Hash())

	_, err = New(nil, 1)
	assert.ErrorIs(t, err, ErrEmptyBundle)
}
