package arbitrage

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

// ContractCaller is satisfied by *eth.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type pairKey struct {
	factory common.Address
	token0  common.Address
	token1  common.Address
}

// PoolOracle reads live reserves. Pair addresses never change once created
// so they are cached; reserves are always read fresh.
type PoolOracle struct {
	chain       ContractCaller
	pairABI     abi.ABI
	factoryABI  abi.ABI
	pairs       *lru.Cache[pairKey, common.Address]
	callTimeout time.Duration
}

func NewPoolOracle(chain ContractCaller, cacheSize int, callTimeout time.Duration) (*PoolOracle, error) {
	pairABI, err := abi.JSON(strings.NewReader(eth.UniswapV2PairABI))
	if err != nil {
		return nil, fmt.Errorf("parse pair ABI: %w", err)
	}
	factoryABI, err := abi.JSON(strings.NewReader(eth.UniswapV2FactoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory ABI: %w", err)
	}
	pairs, err := lru.New[pairKey, common.Address](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("pair cache: %w", err)
	}

	return &PoolOracle{
		chain:       chain,
		pairABI:     pairABI,
		factoryABI:  factoryABI,
		pairs:       pairs,
		callTimeout: callTimeout,
	}, nil
}

// sortTokens orders a pair the way uniswap v2 stores it
func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

func (o *PoolOracle) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if o.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}
	return o.chain.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// PairAddress resolves the dex's pair for tokenA/tokenB through the factory.
func (o *PoolOracle) PairAddress(ctx context.Context, dex eth.DEXConfig, tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1 := sortTokens(tokenA, tokenB)
	key := pairKey{factory: dex.Factory, token0: token0, token1: token1}
	if addr, ok := o.pairs.Get(key); ok {
		return addr, nil
	}

	data, err := o.factoryABI.Pack("getPair", token0, token1)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPair: %w", err)
	}
	result, err := o.call(ctx, dex.Factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s getPair: %w", ErrPoolUnavailable, dex.Name, err)
	}
	unpacked, err := o.factoryABI.Unpack("getPair", result)
	if err != nil || len(unpacked) != 1 {
		return common.Address{}, fmt.Errorf("%w: %s getPair returned %d bytes", ErrPoolUnavailable, dex.Name, len(result))
	}
	pair, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s getPair type %T", ErrPoolUnavailable, dex.Name, unpacked[0])
	}
	if pair == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no pair for %s/%s", ErrPoolUnavailable, dex.Name, token0.Hex(), token1.Hex())
	}

	o.pairs.Add(key, pair)
	return pair, nil
}

// GetReserves returns the pair's reserves ordered as (tokenA, tokenB).
func (o *PoolOracle) GetReserves(ctx context.Context, dex eth.DEXConfig, tokenA, tokenB common.Address) (common.Address, *uint256.Int, *uint256.Int, error) {
	pair, err := o.PairAddress(ctx, dex, tokenA, tokenB)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	data, err := o.pairABI.Pack("getReserves")
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("pack getReserves: %w", err)
	}
	result, err := o.call(ctx, pair, data)
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("%w: %s getReserves on %s: %w", ErrPoolUnavailable, dex.Name, pair.Hex(), err)
	}
	unpacked, err := o.pairABI.Unpack("getReserves", result)
	if err != nil || len(unpacked) < 2 {
		return common.Address{}, nil, nil, fmt.Errorf("%w: %s getReserves on %s returned %d bytes", ErrPoolUnavailable, dex.Name, pair.Hex(), len(result))
	}

	reserve0, ok0 := unpacked[0].(*big.Int)
	reserve1, ok1 := unpacked[1].(*big.Int)
	if !ok0 || !ok1 {
		return common.Address{}, nil, nil, fmt.Errorf("%w: reserve type assertion failed", ErrPoolUnavailable)
	}
	r0, overflow0 := uint256.FromBig(reserve0)
	r1, overflow1 := uint256.FromBig(reserve1)
	if overflow0 || overflow1 {
		return common.Address{}, nil, nil, fmt.Errorf("%w: reserves", ErrOverflow)
	}

	token0, _ := sortTokens(tokenA, tokenB)
	if token0 == tokenA {
		return pair, r0, r1, nil
	}
	return pair, r1, r0, nil
}

// LoadPool reads a pool oriented for swapping tokenIn into tokenOut.
func (o *PoolOracle) LoadPool(ctx context.Context, dex eth.DEXConfig, tokenIn, tokenOut common.Address) (Pool, error) {
	pair, reserveIn, reserveOut, err := o.GetReserves(ctx, dex, tokenIn, tokenOut)
	if err != nil {
		return Pool{}, err
	}
	return Pool{
		Address:    pair,
		DEX:        dex,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
	}, nil
}
