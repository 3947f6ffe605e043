package arbitrage

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

// PoolReader re-reads a pool at evaluation time. *PoolOracle satisfies it.
type PoolReader interface {
	LoadPool(ctx context.Context, dex eth.DEXConfig, tokenIn, tokenOut common.Address) (Pool, error)
}

// Estimator is satisfied by *CostEstimator.
type Estimator interface {
	Estimate(ctx context.Context, msg ethereum.CallMsg) (GasQuote, error)
}

// Decision is an accepted opportunity plus the figures it was accepted on.
type Decision struct {
	Opportunity Opportunity
	Slippage    SlippageQuote
	Gas         GasQuote
	NetProfit   *uint256.Int
}

// ProfitabilityGate runs liquidity, slippage and cost checks in that order
// and stops at the first one that says no. Reserves are re-read rather than
// trusted from discovery.
type ProfitabilityGate struct {
	pools    PoolReader
	slippage SlippageModel
	costs    Estimator
	contract *ArbitrageContract
	from     common.Address
	logger   zerolog.Logger
}

func NewProfitabilityGate(pools PoolReader, slippage SlippageModel, costs Estimator, contract *ArbitrageContract, from common.Address, logger zerolog.Logger) *ProfitabilityGate {
	return &ProfitabilityGate{
		pools:    pools,
		slippage: slippage,
		costs:    costs,
		contract: contract,
		from:     from,
		logger:   logger.With().Str("component", "gate").Logger(),
	}
}

// Evaluate returns a Decision, a *Rejection, or an error that kept the
// candidate from being evaluated at all.
func (g *ProfitabilityGate) Evaluate(ctx context.Context, opp Opportunity) (*Decision, error) {
	if err := g.checkLiquidity(ctx, opp); err != nil {
		return nil, err
	}

	slip, err := g.checkSlippage(ctx, opp)
	if err != nil {
		return nil, err
	}

	msg, err := g.contract.CallMsg(g.from, opp)
	if err != nil {
		return nil, err
	}
	gas, err := g.costs.Estimate(ctx, msg)
	if err != nil {
		return nil, err
	}

	net, overflow := SignedSub(opp.GrossProfit, gas.Cost)
	if overflow {
		return nil, reject(ReasonUnprofitableAfterGas, "net profit out of range (gross %s, gas %s)",
			eth.FormatEther(opp.GrossProfit), eth.FormatEther(gas.Cost))
	}
	if !net.Sgt(opp.MinProfit) {
		return nil, reject(ReasonUnprofitableAfterGas, "net %s ETH <= min %s ETH (gross %s, gas %s)",
			eth.FormatEther(net), eth.FormatEther(opp.MinProfit), eth.FormatEther(opp.GrossProfit), eth.FormatEther(gas.Cost))
	}

	g.logger.Debug().
		Str("opportunity", opp.String()).
		Str("net_eth", eth.FormatEther(net)).
		Uint64("gas_limit", gas.GasLimit.Uint64()).
		Msg("opportunity passed gate")

	return &Decision{Opportunity: opp, Slippage: slip, Gas: gas, NetProfit: net}, nil
}

// checkLiquidity walks the route carrying the running amount so every hop
// is checked against what would actually flow into it.
func (g *ProfitabilityGate) checkLiquidity(ctx context.Context, opp Opportunity) error {
	amount := opp.AmountIn
	for i, hop := range opp.Route {
		pool, err := g.pools.LoadPool(ctx, hop.DEX, hop.TokenIn, hop.TokenOut)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
		if !HasSufficientLiquidity(pool.ReserveIn, pool.ReserveOut, amount) {
			return reject(ReasonInsufficientLiquidity, "hop %d on %s: reserves %s/%s below amount %s",
				i, hop.DEX.Name, pool.ReserveIn.Dec(), pool.ReserveOut.Dec(), amount.Dec())
		}
		amount, err = GetAmountOut(amount, pool.ReserveIn, pool.ReserveOut, pool.DEX.FeeBps)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}

// the entry hop carries the full trade size, so that's where slippage is
// measured
func (g *ProfitabilityGate) checkSlippage(ctx context.Context, opp Opportunity) (SlippageQuote, error) {
	entry := opp.Route[0]
	pool, err := g.pools.LoadPool(ctx, entry.DEX, entry.TokenIn, entry.TokenOut)
	if err != nil {
		return SlippageQuote{}, fmt.Errorf("entry hop: %w", err)
	}
	quote, err := g.slippage.Quote(opp.AmountIn, pool.ReserveIn, pool.ReserveOut, pool.DEX.FeeBps)
	if err != nil {
		return SlippageQuote{}, err
	}
	if err := g.slippage.Check(quote); err != nil {
		return SlippageQuote{}, err
	}
	return quote, nil
}
