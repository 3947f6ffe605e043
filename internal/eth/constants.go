package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token addresses, Ethereum mainnet
var (
	WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDCAddress = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	USDTAddress = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	DAIAddress  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	WBTCAddress = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

type TokenInfo struct {
	Address  common.Address
	Decimals int
	Symbol   string
}

// KnownTokens, lookup by symbol
var KnownTokens = map[string]TokenInfo{
	"WETH": {WETHAddress, 18, "WETH"},
	"USDC": {USDCAddress, 6, "USDC"},
	"USDT": {USDTAddress, 6, "USDT"},
	"DAI":  {DAIAddress, 18, "DAI"},
	"WBTC": {WBTCAddress, 8, "WBTC"},
}

// ResolveToken accepts a known symbol (case-insensitive) or a hex address.
func ResolveToken(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if info, ok := KnownTokens[strings.ToUpper(s)]; ok {
		return info.Address, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("unknown token %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("token %q is the zero address", s)
	}
	return addr, nil
}

// DefaultFeeBps is the Uniswap V2 swap fee (0.3%).
const DefaultFeeBps uint16 = 30

// DEXConfig describes one constant-product exchange. The factory resolves
// pair addresses, the router is what the arbitrage contract swaps through.
type DEXConfig struct {
	Name    string
	Factory common.Address
	Router  common.Address
	FeeBps  uint16
}

// KnownDEXes, Uniswap V2 forks on Ethereum mainnet
var KnownDEXes = map[string]DEXConfig{
	"uniswap": {
		Name:    "uniswap",
		Factory: common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		Router:  common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		FeeBps:  DefaultFeeBps,
	},
	"sushiswap": {
		Name:    "sushiswap",
		Factory: common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"),
		Router:  common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
		FeeBps:  DefaultFeeBps,
	},
	"shibaswap": {
		Name:    "shibaswap",
		Factory: common.HexToAddress("0x115934131916C8b277DD010Ee02de363c09d037c"),
		Router:  common.HexToAddress("0x03f7724180AA6b939894B5Ca4314783B0b36b329"),
		FeeBps:  DefaultFeeBps,
	},
}

// UniswapV2PairABI, getReserves only. token ordering is derived from the
// addresses, so token0/token1 are never called.
const UniswapV2PairABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32",  "name": "blockTimestampLast", "type": "uint32"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

const UniswapV2FactoryABI = `[
	{
		"constant": true,
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"}
		],
		"name": "getPair",
		"outputs": [
			{"internalType": "address", "name": "pair", "type": "address"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

// ArbitrageExecutorABI is the on-chain contract that performs the swaps of
// a route atomically and reverts unless it ends up with minProfit.
const ArbitrageExecutorABI = `[
	{
		"inputs": [
			{"internalType": "address[]", "name": "dexes", "type": "address[]"},
			{"internalType": "address[][]", "name": "paths", "type": "address[][]"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "minProfit", "type": "uint256"}
		],
		"name": "executeArbitrage",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
