package arbitrage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

// a Pool is one uniswapv2 style pair seen from the direction of a swap:
// tokenIn goes in, tokenOut comes out.
type Pool struct {
	Address    common.Address
	DEX        eth.DEXConfig
	TokenIn    common.Address
	TokenOut   common.Address
	ReserveIn  *uint256.Int
	ReserveOut *uint256.Int
}

// Reverse returns the same pool oriented for the opposite swap.
func (p Pool) Reverse() Pool {
	return Pool{
		Address:    p.Address,
		DEX:        p.DEX,
		TokenIn:    p.TokenOut,
		TokenOut:   p.TokenIn,
		ReserveIn:  p.ReserveOut,
		ReserveOut: p.ReserveIn,
	}
}

// Opportunity is a candidate trade found by discovery. It is never
// modified after NewOpportunity; the gate and executor only read it.
type Opportunity struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *uint256.Int
	Route    []Pool
	// GrossProfit is two's-complement signed, before gas.
	GrossProfit *uint256.Int
	MinProfit   *uint256.Int
	BlockNumber uint64
}

func NewOpportunity(tokenIn, tokenOut common.Address, amountIn *uint256.Int, route []Pool, grossProfit, minProfit *uint256.Int, block uint64) (Opportunity, error) {
	if amountIn == nil || amountIn.IsZero() {
		return Opportunity{}, fmt.Errorf("opportunity amount in must be positive")
	}
	if len(route) == 0 {
		return Opportunity{}, fmt.Errorf("opportunity route is empty")
	}
	if grossProfit == nil || minProfit == nil {
		return Opportunity{}, fmt.Errorf("opportunity profit figures are required")
	}

	hops := make([]Pool, len(route))
	for i, p := range route {
		hops[i] = p
		hops[i].ReserveIn = cloneOrZero(p.ReserveIn)
		hops[i].ReserveOut = cloneOrZero(p.ReserveOut)
	}

	return Opportunity{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn.Clone(),
		Route:       hops,
		GrossProfit: grossProfit.Clone(),
		MinProfit:   minProfit.Clone(),
		BlockNumber: block,
	}, nil
}

func (o Opportunity) String() string {
	dexes := ""
	for i, hop := range o.Route {
		if i > 0 {
			dexes += "->"
		}
		dexes += hop.DEX.Name
	}
	return fmt.Sprintf("%s/%s via %s", o.TokenIn.Hex()[:8], o.TokenOut.Hex()[:8], dexes)
}

func cloneOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}
