package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulkyeet/relay-arb/internal/arbitrage"
	"github.com/pulkyeet/relay-arb/internal/config"
	"github.com/pulkyeet/relay-arb/internal/eth"
	"github.com/pulkyeet/relay-arb/internal/scanner"
)

func TestCheckConfigFailsFast(t *testing.T) {
	t.Setenv("SEARCHER_RPC_URL", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"check-config"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCheckConfigOK(t *testing.T) {
	t.Setenv("SEARCHER_RPC_URL", "http://localhost:8545")
	t.Setenv("SEARCHER_PRIVATE_KEY", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("SEARCHER_RELAY_URL", "https://relay.example")
	t.Setenv("SEARCHER_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("SEARCHER_DEXES", "uniswap,sushiswap")
	t.Setenv("SEARCHER_SLIPPAGE_TOLERANCE_BPS", "50")
	t.Setenv("SEARCHER_MAX_SLIPPAGE_WEI", "50000000000000000")
	t.Setenv("SEARCHER_MIN_PROFIT_WEI", "10000000000000000")
	t.Setenv("SEARCHER_TRADE_AMOUNT_WEI", "1000000000000000000")
	t.Setenv("SEARCHER_BASE_TOKEN", "WETH")
	t.Setenv("SEARCHER_QUOTE_TOKENS", "USDC")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"check-config"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "2 dexes, 1 quote tokens, min profit 0.01 ETH")
}

func TestPrintEvaluations(t *testing.T) {
	route := []arbitrage.Pool{
		{DEX: eth.KnownDEXes["uniswap"], TokenIn: eth.WETHAddress, TokenOut: eth.USDCAddress},
		{DEX: eth.KnownDEXes["sushiswap"], TokenIn: eth.USDCAddress, TokenOut: eth.WETHAddress},
	}
	opp, err := arbitrage.NewOpportunity(eth.WETHAddress, eth.USDCAddress, uint256.NewInt(1e18), route,
		uint256.NewInt(2e16), uint256.NewInt(1e16), 100)
	require.NoError(t, err)

	evals := []scanner.Evaluation{
		{
			Opportunity: opp,
			Decision: &arbitrage.Decision{
				Opportunity: opp,
				Gas:         arbitrage.GasQuote{Cost: uint256.NewInt(4e15)},
				NetProfit:   uint256.NewInt(16e15),
			},
		},
		{
			Opportunity: opp,
			Err:         &arbitrage.Rejection{Reason: arbitrage.ReasonExcessiveSlippage, Detail: "0.2 over"},
		},
		{Opportunity: opp, Err: errors.New("rpc down")},
	}

	var out bytes.Buffer
	printEvaluations(&out, 100, evals)

	s := out.String()
	assert.Contains(t, s, "block 100: 3 candidates")
	assert.Contains(t, s, "0.016")
	assert.Contains(t, s, "reject excessive_slippage: 0.2 over")
	assert.Contains(t, s, "error: rpc down")
	assert.Contains(t, s, "accepted: 33.3% of 3")
}
