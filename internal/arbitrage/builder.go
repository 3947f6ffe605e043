package arbitrage

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

// ArbitrageContract builds calls to the deployed executor contract.
type ArbitrageContract struct {
	address common.Address
	abi     abi.ABI
}

func NewArbitrageContract(address common.Address) (*ArbitrageContract, error) {
	parsed, err := abi.JSON(strings.NewReader(eth.ArbitrageExecutorABI))
	if err != nil {
		return nil, fmt.Errorf("parse executor ABI: %w", err)
	}
	return &ArbitrageContract{address: address, abi: parsed}, nil
}

func (c *ArbitrageContract) Address() common.Address {
	return c.address
}

// Calldata encodes executeArbitrage for the opportunity: one router and a
// two-token path per hop, the trade size, and the on-chain profit floor.
func (c *ArbitrageContract) Calldata(opp Opportunity) ([]byte, error) {
	dexes := make([]common.Address, len(opp.Route))
	paths := make([][]common.Address, len(opp.Route))
	for i, hop := range opp.Route {
		dexes[i] = hop.DEX.Router
		paths[i] = []common.Address{hop.TokenIn, hop.TokenOut}
	}

	data, err := c.abi.Pack("executeArbitrage", dexes, paths, opp.AmountIn.ToBig(), opp.MinProfit.ToBig())
	if err != nil {
		return nil, fmt.Errorf("pack executeArbitrage: %w", err)
	}
	return data, nil
}

// CallMsg is the call used for gas estimation.
func (c *ArbitrageContract) CallMsg(from common.Address, opp Opportunity) (ethereum.CallMsg, error) {
	data, err := c.Calldata(opp)
	if err != nil {
		return ethereum.CallMsg{}, err
	}
	to := c.address
	return ethereum.CallMsg{From: from, To: &to, Data: data}, nil
}
