package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/pulkyeet/relay-arb/internal/eth"
)

// ErrInvalidConfig wraps every validation failure. It is always fatal.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the validated, typed configuration. It is built once by Load
// and handed to each component; nothing mutates it afterwards.
type Config struct {
	RPCURL          string
	PrivateKey      *ecdsa.PrivateKey
	RelayURL        string
	RelayAuthKey    *ecdsa.PrivateKey
	ChainID         uint64 // 0 = ask the node
	ContractAddress common.Address

	DEXes       []eth.DEXConfig
	BaseToken   common.Address
	QuoteTokens []common.Address

	SlippageToleranceBps uint16
	MaxSlippage          *uint256.Int
	MinProfit            *uint256.Int
	TradeAmount          *uint256.Int

	PollInterval     time.Duration
	InclusionTimeout time.Duration
	RPCTimeout       time.Duration

	LogLevel      string
	LogFormat     string
	MetricsAddr   string
	PairCacheSize int
}

// MarshalZerologObject logs the config without secrets.
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	dexes := make([]string, len(c.DEXes))
	for i, d := range c.DEXes {
		dexes[i] = d.Name
	}
	quotes := make([]string, len(c.QuoteTokens))
	for i, q := range c.QuoteTokens {
		quotes[i] = q.Hex()
	}

	e.Str("rpc_url", redactURL(c.RPCURL)).
		Str("relay_url", c.RelayURL).
		Str("wallet", crypto.PubkeyToAddress(c.PrivateKey.PublicKey).Hex()).
		Str("relay_identity", crypto.PubkeyToAddress(c.RelayAuthKey.PublicKey).Hex()).
		Uint64("chain_id", c.ChainID).
		Str("contract", c.ContractAddress.Hex()).
		Strs("dexes", dexes).
		Str("base_token", c.BaseToken.Hex()).
		Strs("quote_tokens", quotes).
		Uint16("slippage_tolerance_bps", c.SlippageToleranceBps).
		Str("max_slippage_eth", eth.FormatEther(c.MaxSlippage)).
		Str("min_profit_eth", eth.FormatEther(c.MinProfit)).
		Str("trade_amount_eth", eth.FormatEther(c.TradeAmount)).
		Dur("poll_interval", c.PollInterval).
		Dur("inclusion_timeout", c.InclusionTimeout).
		Dur("rpc_timeout", c.RPCTimeout).
		Str("metrics_addr", c.MetricsAddr)
}

// node urls usually carry an api key in the path
func redactURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return u[:i+3+j] + "/..."
		}
	}
	return u
}

// duration decodes TOML strings like "1s" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// fileConfig is the raw shape shared by the TOML file and the environment.
// Amounts stay strings until build so values past int64 survive.
type fileConfig struct {
	RPCURL          string `toml:"rpc_url"`
	PrivateKey      string `toml:"private_key"`
	RelayURL        string `toml:"relay_url"`
	RelayAuthKey    string `toml:"relay_auth_key"`
	ChainID         int64  `toml:"chain_id"`
	ContractAddress string `toml:"contract_address"`

	DEXes       []string `toml:"dexes"`
	BaseToken   string   `toml:"base_token"`
	QuoteTokens []string `toml:"quote_tokens"`

	SlippageToleranceBps *int64 `toml:"slippage_tolerance_bps"`
	MaxSlippageWei       string `toml:"max_slippage_wei"`
	MinProfitWei         string `toml:"min_profit_wei"`
	TradeAmountWei       string `toml:"trade_amount_wei"`

	PollInterval     duration `toml:"poll_interval"`
	InclusionTimeout duration `toml:"inclusion_timeout"`
	RPCTimeout       duration `toml:"rpc_timeout"`

	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	MetricsAddr   string `toml:"metrics_addr"`
	PairCacheSize int    `toml:"pair_cache_size"`
}

func defaults() fileConfig {
	return fileConfig{
		PollInterval:     duration{time.Second},
		InclusionTimeout: duration{30 * time.Second},
		RPCTimeout:       duration{10 * time.Second},
		LogLevel:         "info",
		LogFormat:        "json",
		PairCacheSize:    256,
	}
}

var validLogFormats = map[string]bool{"json": true, "console": true}

// build validates the raw values and converts them. Every problem is
// collected so one run reports all of them.
func (f fileConfig) build() (Config, []string) {
	var (
		cfg  Config
		errs []string
	)
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	cfg.RPCURL = strings.TrimSpace(f.RPCURL)
	if cfg.RPCURL == "" {
		fail("rpc_url is required")
	}
	cfg.RelayURL = strings.TrimSpace(f.RelayURL)
	if cfg.RelayURL == "" {
		fail("relay_url is required")
	}

	if f.PrivateKey == "" {
		fail("private_key is required")
	} else if key, err := eth.ParsePrivateKey(f.PrivateKey); err != nil {
		fail("private_key: %v", err)
	} else {
		cfg.PrivateKey = key
	}

	if f.RelayAuthKey == "" {
		// the relay only uses this key for reputation, a throwaway works
		key, err := crypto.GenerateKey()
		if err != nil {
			fail("relay_auth_key: generate: %v", err)
		}
		cfg.RelayAuthKey = key
	} else if key, err := eth.ParsePrivateKey(f.RelayAuthKey); err != nil {
		fail("relay_auth_key: %v", err)
	} else {
		cfg.RelayAuthKey = key
	}

	if f.ChainID < 0 {
		fail("chain_id must not be negative, got %d", f.ChainID)
	} else {
		cfg.ChainID = uint64(f.ChainID)
	}

	switch {
	case f.ContractAddress == "":
		fail("contract_address is required")
	case !common.IsHexAddress(f.ContractAddress):
		fail("contract_address %q is not an address", f.ContractAddress)
	default:
		cfg.ContractAddress = common.HexToAddress(f.ContractAddress)
		if cfg.ContractAddress == (common.Address{}) {
			fail("contract_address must not be the zero address")
		}
	}

	dexes, dexErrs := parseDEXes(f.DEXes)
	errs = append(errs, dexErrs...)
	cfg.DEXes = dexes

	if f.BaseToken == "" {
		fail("base_token is required")
	} else if addr, err := eth.ResolveToken(f.BaseToken); err != nil {
		fail("base_token: %v", err)
	} else {
		cfg.BaseToken = addr
	}

	if len(f.QuoteTokens) == 0 {
		fail("quote_tokens is required")
	}
	for _, q := range f.QuoteTokens {
		addr, err := eth.ResolveToken(q)
		if err != nil {
			fail("quote_tokens: %v", err)
			continue
		}
		if addr == cfg.BaseToken {
			fail("quote_tokens: %s is the base token", q)
			continue
		}
		cfg.QuoteTokens = append(cfg.QuoteTokens, addr)
	}

	if f.SlippageToleranceBps == nil {
		fail("slippage_tolerance_bps is required")
	} else if bps := *f.SlippageToleranceBps; bps < 0 || bps >= 10000 {
		fail("slippage_tolerance_bps must be in [0, 10000), got %d", bps)
	} else {
		cfg.SlippageToleranceBps = uint16(bps)
		// the tolerance is measured against a fee-free spot quote, so a
		// value at or under the pool fee rejects every route
		var maxFee uint16
		for _, d := range cfg.DEXes {
			maxFee = max(maxFee, d.FeeBps)
		}
		if len(cfg.DEXes) > 0 && cfg.SlippageToleranceBps <= maxFee {
			fail("slippage_tolerance_bps %d must exceed the highest dex fee %d bps", bps, maxFee)
		}
	}

	cfg.MaxSlippage = parseWei("max_slippage_wei", f.MaxSlippageWei, fail)
	cfg.MinProfit = parseWei("min_profit_wei", f.MinProfitWei, fail)
	cfg.TradeAmount = parseWei("trade_amount_wei", f.TradeAmountWei, fail)
	if cfg.TradeAmount != nil && cfg.TradeAmount.IsZero() {
		fail("trade_amount_wei must be positive")
	}

	cfg.PollInterval = f.PollInterval.Duration
	cfg.InclusionTimeout = f.InclusionTimeout.Duration
	cfg.RPCTimeout = f.RPCTimeout.Duration
	for name, d := range map[string]time.Duration{
		"poll_interval":     cfg.PollInterval,
		"inclusion_timeout": cfg.InclusionTimeout,
		"rpc_timeout":       cfg.RPCTimeout,
	} {
		if d <= 0 {
			fail("%s must be positive, got %s", name, d)
		}
	}

	cfg.LogLevel = strings.ToLower(f.LogLevel)
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil || cfg.LogLevel == "" {
		fail("unknown log_level %q", f.LogLevel)
	}
	cfg.LogFormat = strings.ToLower(f.LogFormat)
	if !validLogFormats[cfg.LogFormat] {
		fail("unknown log_format %q (valid: json, console)", f.LogFormat)
	}
	cfg.MetricsAddr = strings.TrimSpace(f.MetricsAddr)
	cfg.PairCacheSize = f.PairCacheSize
	if cfg.PairCacheSize <= 0 {
		fail("pair_cache_size must be positive, got %d", f.PairCacheSize)
	}

	return cfg, errs
}

// parseWei accepts a non-negative decimal integer no larger than 2^255-1,
// so every amount is also a valid positive int256.
func parseWei(name, s string, fail func(string, ...any)) *uint256.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		fail("%s is required", name)
		return nil
	}
	if strings.HasPrefix(s, "-") {
		fail("%s must not be negative, got %s", name, s)
		return nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		fail("%s: %q is not a decimal integer", name, s)
		return nil
	}
	if v.Sign() < 0 {
		fail("%s exceeds 2^255-1", name)
		return nil
	}
	return v
}

// parseDEXes takes preset names or name:factory:router[:feeBps] entries.
func parseDEXes(entries []string) ([]eth.DEXConfig, []string) {
	var (
		dexes []eth.DEXConfig
		errs  []string
		seen  = map[string]bool{}
	)

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		parts := strings.Split(entry, ":")

		var dex eth.DEXConfig
		switch len(parts) {
		case 1:
			preset, ok := eth.KnownDEXes[strings.ToLower(entry)]
			if !ok {
				errs = append(errs, fmt.Sprintf("dexes: unknown preset %q", entry))
				continue
			}
			dex = preset
		case 3, 4:
			if !common.IsHexAddress(parts[1]) || !common.IsHexAddress(parts[2]) {
				errs = append(errs, fmt.Sprintf("dexes: %q needs hex factory and router addresses", entry))
				continue
			}
			dex = eth.DEXConfig{
				Name:    strings.ToLower(parts[0]),
				Factory: common.HexToAddress(parts[1]),
				Router:  common.HexToAddress(parts[2]),
				FeeBps:  eth.DefaultFeeBps,
			}
			if len(parts) == 4 {
				fee, err := strconv.ParseUint(parts[3], 10, 16)
				if err != nil || fee >= 10000 {
					errs = append(errs, fmt.Sprintf("dexes: %q fee must be in [0, 10000) bps", entry))
					continue
				}
				dex.FeeBps = uint16(fee)
			}
		default:
			errs = append(errs, fmt.Sprintf("dexes: malformed entry %q", entry))
			continue
		}

		if dex.Name == "" || seen[dex.Name] {
			errs = append(errs, fmt.Sprintf("dexes: duplicate or empty name in %q", entry))
			continue
		}
		seen[dex.Name] = true
		dexes = append(dexes, dex)
	}

	if len(entries) == 0 {
		errs = append(errs, "dexes is required")
	} else if len(dexes) < 2 && len(errs) == 0 {
		errs = append(errs, "dexes: at least two are needed to form a cycle")
	}
	return dexes, errs
}
