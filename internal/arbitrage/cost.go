package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/holiman/uint256"
)

// GasOracle is satisfied by *eth.Client.
type GasOracle interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type GasQuote struct {
	GasLimit *uint256.Int
	GasPrice *uint256.Int
	Cost     *uint256.Int
}

// CostEstimator prices a call at the node's current gas price. It never
// guesses: any failure surfaces as ErrEstimationFailed.
type CostEstimator struct {
	chain       GasOracle
	callTimeout time.Duration
}

func NewCostEstimator(chain GasOracle, callTimeout time.Duration) *CostEstimator {
	return &CostEstimator{chain: chain, callTimeout: callTimeout}
}

func (c *CostEstimator) Estimate(ctx context.Context, msg ethereum.CallMsg) (GasQuote, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	limit, err := c.chain.EstimateGas(ctx, msg)
	if err != nil {
		return GasQuote{}, fmt.Errorf("%w: estimate gas: %w", ErrEstimationFailed, err)
	}
	if limit == 0 {
		return GasQuote{}, fmt.Errorf("%w: node returned zero gas limit", ErrEstimationFailed)
	}

	price, err := c.chain.SuggestGasPrice(ctx)
	if err != nil {
		return GasQuote{}, fmt.Errorf("%w: gas price: %w", ErrEstimationFailed, err)
	}
	if price == nil || price.Sign() < 0 {
		return GasQuote{}, fmt.Errorf("%w: invalid gas price %v", ErrEstimationFailed, price)
	}
	gasPrice, overflow := uint256.FromBig(price)
	if overflow {
		return GasQuote{}, fmt.Errorf("%w: gas price", ErrOverflow)
	}

	gasLimit := uint256.NewInt(limit)
	cost, overflow := new(uint256.Int).MulOverflow(gasLimit, gasPrice)
	if overflow {
		return GasQuote{}, fmt.Errorf("%w: gas cost", ErrOverflow)
	}

	return GasQuote{GasLimit: gasLimit, GasPrice: gasPrice, Cost: cost}, nil
}
