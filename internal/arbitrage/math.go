package arbitrage

import (
	"fmt"

	"github.com/holiman/uint256"
)

// all rates are in basis points
const bpsDenominator = 10000

var bps = uint256.NewInt(bpsDenominator)

// GetAmountOut is the constant-product output for amountIn with the fee
// taken from the input:
//
//	out = amountIn*(10000-fee)*reserveOut / (reserveIn*10000 + amountIn*(10000-fee))
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrDivideByZero
	}
	if feeBps >= bpsDenominator {
		return nil, fmt.Errorf("fee %d bps out of range", feeBps)
	}

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(uint64(bpsDenominator-feeBps)))
	if overflow {
		return nil, fmt.Errorf("%w: amount in with fee", ErrOverflow)
	}
	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, fmt.Errorf("%w: amount out numerator", ErrOverflow)
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, bps)
	if overflow {
		return nil, fmt.Errorf("%w: amount out denominator", ErrOverflow)
	}
	if _, overflow = denominator.AddOverflow(denominator, amountInWithFee); overflow {
		return nil, fmt.Errorf("%w: amount out denominator", ErrOverflow)
	}

	return new(uint256.Int).Div(numerator, denominator), nil
}

// PriceImpact is how far the trade moves reserveOut with no fee:
// reserveOut - reserveOut*reserveIn/(reserveIn+amountIn)
func PriceImpact(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrDivideByZero
	}
	newReserveIn, overflow := new(uint256.Int).AddOverflow(reserveIn, amountIn)
	if overflow {
		return nil, fmt.Errorf("%w: reserve in after trade", ErrOverflow)
	}
	k, overflow := new(uint256.Int).MulOverflow(reserveOut, reserveIn)
	if overflow {
		return nil, fmt.Errorf("%w: invariant", ErrOverflow)
	}
	newReserveOut := k.Div(k, newReserveIn)

	// newReserveIn >= reserveIn so this can't go negative
	return new(uint256.Int).Sub(reserveOut, newReserveOut), nil
}

// SpotAmountOut is what amountIn buys at the pool's current price, with no
// fee and no impact.
func SpotAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if reserveIn.IsZero() {
		return nil, ErrDivideByZero
	}
	num, overflow := new(uint256.Int).MulOverflow(amountIn, reserveOut)
	if overflow {
		return nil, fmt.Errorf("%w: spot amount", ErrOverflow)
	}
	return num.Div(num, reserveIn), nil
}

// HasSufficientLiquidity requires both reserves to cover the trade amount.
func HasSufficientLiquidity(reserveIn, reserveOut, amountIn *uint256.Int) bool {
	return !reserveIn.Lt(amountIn) && !reserveOut.Lt(amountIn)
}

// SignedSub returns a-b over two's-complement int256 and reports whether
// the true result fell outside that range.
func SignedSub(a, b *uint256.Int) (*uint256.Int, bool) {
	z := new(uint256.Int).Sub(a, b)
	negA, negB, negZ := a.Sign() < 0, b.Sign() < 0, z.Sign() < 0
	return z, negA != negB && negZ != negA
}
