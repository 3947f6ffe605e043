package arbitrage

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

// fakeChain answers getPair from the factory and getReserves from the pair.
type fakeChain struct {
	t          *testing.T
	pair       common.Address
	reserve0   *big.Int
	reserve1   *big.Int
	reserveErr error
	getPairs   int
	getReserve int
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	pairABI, err := abi.JSON(strings.NewReader(eth.UniswapV2PairABI))
	require.NoError(f.t, err)
	factoryABI, err := abi.JSON(strings.NewReader(eth.UniswapV2FactoryABI))
	require.NoError(f.t, err)

	switch {
	case bytes.Equal(msg.Data[:4], factoryABI.Methods["getPair"].ID):
		f.getPairs++
		return factoryABI.Methods["getPair"].Outputs.Pack(f.pair)
	case bytes.Equal(msg.Data[:4], pairABI.Methods["getReserves"].ID):
		f.getReserve++
		if f.reserveErr != nil {
			return nil, f.reserveErr
		}
		require.Equal(f.t, f.pair, *msg.To)
		return pairABI.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
	}
	f.t.Fatalf("unexpected call to %s", msg.To.Hex())
	return nil, nil
}

func TestPoolOracleOrientsReserves(t *testing.T) {
	// USDC (0xA0b8...) sorts before WETH (0xC02a...), so token0 is USDC
	chain := &fakeChain{
		t:        t,
		pair:     common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
		reserve0: big.NewInt(2_000_000),
		reserve1: big.NewInt(1_000),
	}
	oracle, err := NewPoolOracle(chain, 16, 0)
	require.NoError(t, err)

	pool, err := oracle.LoadPool(context.Background(), uniswap, eth.WETHAddress, eth.USDCAddress)
	require.NoError(t, err)
	assert.Equal(t, chain.pair, pool.Address)
	assert.Equal(t, uint64(1_000), pool.ReserveIn.Uint64())
	assert.Equal(t, uint64(2_000_000), pool.ReserveOut.Uint64())

	_, usdc, weth, err := oracle.GetReserves(context.Background(), uniswap, eth.USDCAddress, eth.WETHAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), usdc.Uint64())
	assert.Equal(t, uint64(1_000), weth.Uint64())
}

func TestPoolOracleCachesPairNotReserves(t *testing.T) {
	chain := &fakeChain{
		t:        t,
		pair:     common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		reserve0: big.NewInt(10),
		reserve1: big.NewInt(20),
	}
	oracle, err := NewPoolOracle(chain, 16, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := oracle.LoadPool(context.Background(), sushiswap, eth.WETHAddress, eth.DAIAddress)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, chain.getPairs)
	assert.Equal(t, 3, chain.getReserve)

	chain.reserve0 = big.NewInt(11)
	_, r0, _, err := oracle.GetReserves(context.Background(), sushiswap, eth.DAIAddress, eth.WETHAddress)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), r0.Uint64())
}

func TestPoolOracleMissingPair(t *testing.T) {
	chain := &fakeChain{t: t}
	oracle, err := NewPoolOracle(chain, 16, 0)
	require.NoError(t, err)

	_, err = oracle.LoadPool(context.Background(), uniswap, eth.WETHAddress, eth.WBTCAddress)
	assert.ErrorIs(t, err, ErrPoolUnavailable)

	// a missing pair isn't cached, so the next read asks again
	_, err = oracle.LoadPool(context.Background(), uniswap, eth.WETHAddress, eth.WBTCAddress)
	assert.ErrorIs(t, err, ErrPoolUnavailable)
	assert.Equal(t, 2, chain.getPairs)
}

func TestPoolOracleCallFailure(t *testing.T) {
	chain := &fakeChain{
		t:          t,
		pair:       common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		reserveErr: errors.New("execution reverted"),
	}
	oracle, err := NewPoolOracle(chain, 16, 0)
	require.NoError(t, err)

	_, err = oracle.LoadPool(context.Background(), uniswap, eth.WETHAddress, eth.USDTAddress)
	assert.ErrorIs(t, err, ErrPoolUnavailable)
	assert.ErrorContains(t, err, "execution reverted")
	assert.Equal(t, ClassTransient, Classify(err))
}
