package arbitrage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

// Discovery looks for two-hop cycles base -> quote -> base across every
// ordered pair of configured dexes.
type Discovery struct {
	pools     PoolReader
	dexes     []eth.DEXConfig
	base      common.Address
	quotes    []common.Address
	amountIn  *uint256.Int
	minProfit *uint256.Int
	logger    zerolog.Logger
}

type DiscoveryConfig struct {
	DEXes       []eth.DEXConfig
	BaseToken   common.Address
	QuoteTokens []common.Address
	TradeAmount *uint256.Int
	MinProfit   *uint256.Int
}

func NewDiscovery(pools PoolReader, cfg DiscoveryConfig, logger zerolog.Logger) *Discovery {
	return &Discovery{
		pools:     pools,
		dexes:     cfg.DEXes,
		base:      cfg.BaseToken,
		quotes:    cfg.QuoteTokens,
		amountIn:  cfg.TradeAmount,
		minProfit: cfg.MinProfit,
		logger:    logger.With().Str("component", "discovery").Logger(),
	}
}

// Discover returns every cycle that ends with more base token than it
// started with. Pools that can't be read are skipped; an error comes back
// only when nothing could be read at all.
func (d *Discovery) Discover(ctx context.Context, block uint64) ([]Opportunity, error) {
	var (
		opps     []Opportunity
		readErrs []error
		read     int
	)

	for _, quote := range d.quotes {
		if err := ctx.Err(); err != nil {
			return opps, err
		}

		// base -> quote on every dex
		pools := make([]*Pool, len(d.dexes))
		for i, dex := range d.dexes {
			pool, err := d.pools.LoadPool(ctx, dex, d.base, quote)
			if err != nil {
				d.logger.Debug().Err(err).Str("dex", dex.Name).Str("quote", quote.Hex()).Msg("pool skipped")
				readErrs = append(readErrs, err)
				continue
			}
			read++
			pools[i] = &pool
		}

		for buy := range pools {
			for sell := range pools {
				if buy == sell || pools[buy] == nil || pools[sell] == nil {
					continue
				}
				opp, ok, err := d.evaluateCycle(*pools[buy], pools[sell].Reverse(), quote, block)
				if err != nil {
					d.logger.Debug().Err(err).
						Str("buy", d.dexes[buy].Name).
						Str("sell", d.dexes[sell].Name).
						Msg("cycle skipped")
					continue
				}
				if ok {
					opps = append(opps, opp)
				}
			}
		}
	}

	if read == 0 && len(readErrs) > 0 {
		return nil, fmt.Errorf("no pools readable: %w", errors.Join(readErrs...))
	}
	return opps, nil
}

func (d *Discovery) evaluateCycle(buy, sell Pool, quote common.Address, block uint64) (Opportunity, bool, error) {
	mid, err := GetAmountOut(d.amountIn, buy.ReserveIn, buy.ReserveOut, buy.DEX.FeeBps)
	if err != nil {
		return Opportunity{}, false, err
	}
	out, err := GetAmountOut(mid, sell.ReserveIn, sell.ReserveOut, sell.DEX.FeeBps)
	if err != nil {
		return Opportunity{}, false, err
	}
	if !out.Gt(d.amountIn) {
		return Opportunity{}, false, nil
	}

	gross := new(uint256.Int).Sub(out, d.amountIn)
	// anything past int256 would read as negative downstream
	if gross.Sign() < 0 {
		return Opportunity{}, false, fmt.Errorf("%w: gross profit", ErrOverflow)
	}

	opp, err := NewOpportunity(d.base, quote, d.amountIn, []Pool{buy, sell}, gross, d.minProfit, block)
	if err != nil {
		return Opportunity{}, false, err
	}
	return opp, true, nil
}
