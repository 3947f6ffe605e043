package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SEARCHER_RPC_URL", "https://eth.example/v2/secret")
	t.Setenv("SEARCHER_PRIVATE_KEY", testKey)
	t.Setenv("SEARCHER_RELAY_URL", "https://relay.example")
	t.Setenv("SEARCHER_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("SEARCHER_DEXES", "uniswap, sushiswap")
	t.Setenv("SEARCHER_SLIPPAGE_TOLERANCE_BPS", "50")
	t.Setenv("SEARCHER_MAX_SLIPPAGE_WEI", "50000000000000000")
	t.Setenv("SEARCHER_MIN_PROFIT_WEI", "10000000000000000")
	t.Setenv("SEARCHER_TRADE_AMOUNT_WEI", "1000000000000000000")
	t.Setenv("SEARCHER_BASE_TOKEN", "WETH")
	t.Setenv("SEARCHER_QUOTE_TOKENS", "USDC,DAI")
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://eth.example/v2/secret", cfg.RPCURL)
	assert.Len(t, cfg.DEXes, 2)
	assert.Equal(t, eth.KnownDEXes["sushiswap"].Router, cfg.DEXes[1].Router)
	assert.Equal(t, eth.WETHAddress, cfg.BaseToken)
	assert.Equal(t, []common.Address{eth.USDCAddress, eth.DAIAddress}, cfg.QuoteTokens)
	assert.Equal(t, uint16(50), cfg.SlippageToleranceBps)
	assert.Equal(t, "10000000000000000", cfg.MinProfit.Dec())
	assert.Equal(t, "1000000000000000000", cfg.TradeAmount.Dec())

	// defaults
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.InclusionTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 256, cfg.PairCacheSize)
	assert.Equal(t, uint64(0), cfg.ChainID)
	assert.NotNil(t, cfg.RelayAuthKey, "a relay identity is generated when none is set")
}

func TestLoadReportsEveryMissingField(t *testing.T) {
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)

	for _, field := range []string{
		"rpc_url", "private_key", "relay_url", "contract_address", "dexes",
		"base_token", "quote_tokens", "slippage_tolerance_bps",
		"max_slippage_wei", "min_profit_wei", "trade_amount_wei",
	} {
		assert.ErrorContains(t, err, field)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"negative amount":    {"SEARCHER_MIN_PROFIT_WEI", "-1", "must not be negative"},
		"not a number":       {"SEARCHER_TRADE_AMOUNT_WEI", "1e18", "not a decimal integer"},
		"past int256":        {"SEARCHER_MAX_SLIPPAGE_WEI", "57896044618658097711785492504343953926634992332820282019728792003956564819968", "2^255-1"},
		"zero trade":         {"SEARCHER_TRADE_AMOUNT_WEI", "0", "must be positive"},
		"bps too high":       {"SEARCHER_SLIPPAGE_TOLERANCE_BPS", "10000", "slippage_tolerance_bps"},
		"bps not a number":   {"SEARCHER_SLIPPAGE_TOLERANCE_BPS", "half", "SEARCHER_SLIPPAGE_TOLERANCE_BPS"},
		"bps at dex fee":     {"SEARCHER_SLIPPAGE_TOLERANCE_BPS", "30", "highest dex fee 30 bps"},
		"bps under dex fee":  {"SEARCHER_DEXES", "uniswap,custom:0x00000000000000000000000000000000000000b1:0x00000000000000000000000000000000000000b2:100", "highest dex fee 100 bps"},
		"bad duration":       {"SEARCHER_POLL_INTERVAL", "soon", "SEARCHER_POLL_INTERVAL"},
		"zero duration":      {"SEARCHER_INCLUSION_TIMEOUT", "0s", "inclusion_timeout"},
		"unknown dex":        {"SEARCHER_DEXES", "uniswap,pancake", "unknown preset"},
		"one dex":            {"SEARCHER_DEXES", "uniswap", "at least two"},
		"bad key":            {"SEARCHER_PRIVATE_KEY", "0x1234", "private_key"},
		"base as quote":      {"SEARCHER_QUOTE_TOKENS", "USDC,WETH", "is the base token"},
		"zero contract":      {"SEARCHER_CONTRACT_ADDRESS", "0x0000000000000000000000000000000000000000", "zero address"},
		"unknown log format": {"SEARCHER_LOG_FORMAT", "xml", "log_format"},
		"unknown log level":  {"SEARCHER_LOG_LEVEL", "loud", "log_level"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load("")
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadMaxInt256Accepted(t *testing.T) {
	setRequired(t)
	t.Setenv("SEARCHER_MAX_SLIPPAGE_WEI", "57896044618658097711785492504343953926634992332820282019728792003956564819967")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxSlippage.Sign())
}

func TestLoadCustomDEX(t *testing.T) {
	setRequired(t)
	t.Setenv("SEARCHER_DEXES", "uniswap,fork:0x0000000000000000000000000000000000000001:0x0000000000000000000000000000000000000002:25")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.DEXes, 2)
	assert.Equal(t, eth.DEXConfig{
		Name:    "fork",
		Factory: common.HexToAddress("0x01"),
		Router:  common.HexToAddress("0x02"),
		FeeBps:  25,
	}, cfg.DEXes[1])
}

func TestLoadTOMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searcher.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc_url = "https://file.example"
private_key = "`+testKey+`"
relay_url = "https://relay.example"
contract_address = "0x00000000000000000000000000000000000000aa"
dexes = ["uniswap", "sushiswap", "shibaswap"]
base_token = "WETH"
quote_tokens = ["USDT"]
slippage_tolerance_bps = 60
max_slippage_wei = "1000"
min_profit_wei = "2000"
trade_amount_wei = "3000"
poll_interval = "250ms"
chain_id = 1
`), 0o600))

	t.Setenv("SEARCHER_RPC_URL", "https://env.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", cfg.RPCURL)
	assert.Len(t, cfg.DEXes, 3)
	assert.Equal(t, []common.Address{eth.USDTAddress}, cfg.QuoteTokens)
	assert.Equal(t, uint16(60), cfg.SlippageToleranceBps)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, uint64(1), cfg.ChainID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://eth.example/...", redactURL("https://eth.example/v2/secret"))
	assert.Equal(t, "http://localhost:8545", redactURL("http://localhost:8545"))
}
