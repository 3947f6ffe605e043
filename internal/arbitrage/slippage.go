package arbitrage

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SlippageModel bounds how much worse than spot a swap may execute. The
// allowance is the smaller of a relative tolerance and an absolute cap.
type SlippageModel struct {
	ToleranceBps uint16
	MaxSlippage  *uint256.Int
}

type SlippageQuote struct {
	AmountOut   *uint256.Int
	Expected    *uint256.Int
	Slippage    *uint256.Int
	PriceImpact *uint256.Int
	Allowed     *uint256.Int
}

func (m SlippageModel) Quote(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (SlippageQuote, error) {
	out, err := GetAmountOut(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return SlippageQuote{}, err
	}
	expected, err := SpotAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return SlippageQuote{}, err
	}
	impact, err := PriceImpact(amountIn, reserveIn, reserveOut)
	if err != nil {
		return SlippageQuote{}, err
	}

	slippage := new(uint256.Int)
	if expected.Gt(out) {
		slippage.Sub(expected, out)
	}

	// tolerance < 10000 so the scaled value can't exceed expected
	allowed, _ := new(uint256.Int).MulDivOverflow(expected, uint256.NewInt(uint64(m.ToleranceBps)), bps)
	if m.MaxSlippage != nil && m.MaxSlippage.Lt(allowed) {
		allowed.Set(m.MaxSlippage)
	}

	return SlippageQuote{
		AmountOut:   out,
		Expected:    expected,
		Slippage:    slippage,
		PriceImpact: impact,
		Allowed:     allowed,
	}, nil
}

// Check rejects a quote whose slippage is over the allowance.
func (m SlippageModel) Check(q SlippageQuote) error {
	if q.Slippage.Gt(q.Allowed) {
		return reject(ReasonExcessiveSlippage, "slippage %s > allowed %s (impact %s)",
			q.Slippage.Dec(), q.Allowed.Dec(), q.PriceImpact.Dec())
	}
	return nil
}

func (q SlippageQuote) String() string {
	return fmt.Sprintf("out=%s expected=%s slippage=%s allowed=%s",
		q.AmountOut.Dec(), q.Expected.Dec(), q.Slippage.Dec(), q.Allowed.Dec())
}
