package eth

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatEther renders a wei amount as ETH for log lines. Values are read as
// two's-complement so a negative net profit prints with a sign.
func FormatEther(wei *uint256.Int) string {
	if wei == nil {
		return "<nil>"
	}
	if wei.Sign() < 0 {
		abs := new(uint256.Int).Neg(wei)
		return "-" + decimal.NewFromBigInt(abs.ToBig(), -18).String()
	}
	return decimal.NewFromBigInt(wei.ToBig(), -18).String()
}
