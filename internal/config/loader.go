package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "SEARCHER_"

// Load builds the configuration from the defaults, the optional TOML file
// at path, a .env file if present, and SEARCHER_* environment variables,
// each layer overriding the previous one. Any problem is reported as one
// error wrapping ErrInvalidConfig.
func Load(path string) (Config, error) {
	raw := defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
		}
	}

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	errs := applyEnvOverrides(&raw)

	cfg, buildErrs := raw.build()
	errs = append(errs, buildErrs...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

// applyEnvOverrides copies set variables over the file values. Unlike a
// missing variable, a malformed one is an error.
func applyEnvOverrides(cfg *fileConfig) []string {
	e := &envReader{}

	e.setStr(&cfg.RPCURL, "RPC_URL")
	e.setStr(&cfg.PrivateKey, "PRIVATE_KEY")
	e.setStr(&cfg.RelayURL, "RELAY_URL")
	e.setStr(&cfg.RelayAuthKey, "RELAY_AUTH_KEY")
	e.setInt64(&cfg.ChainID, "CHAIN_ID")
	e.setStr(&cfg.ContractAddress, "CONTRACT_ADDRESS")

	e.setList(&cfg.DEXes, "DEXES")
	e.setStr(&cfg.BaseToken, "BASE_TOKEN")
	e.setList(&cfg.QuoteTokens, "QUOTE_TOKENS")

	e.setOptInt64(&cfg.SlippageToleranceBps, "SLIPPAGE_TOLERANCE_BPS")
	e.setStr(&cfg.MaxSlippageWei, "MAX_SLIPPAGE_WEI")
	e.setStr(&cfg.MinProfitWei, "MIN_PROFIT_WEI")
	e.setStr(&cfg.TradeAmountWei, "TRADE_AMOUNT_WEI")

	e.setDuration(&cfg.PollInterval, "POLL_INTERVAL")
	e.setDuration(&cfg.InclusionTimeout, "INCLUSION_TIMEOUT")
	e.setDuration(&cfg.RPCTimeout, "RPC_TIMEOUT")

	e.setStr(&cfg.LogLevel, "LOG_LEVEL")
	e.setStr(&cfg.LogFormat, "LOG_FORMAT")
	e.setStr(&cfg.MetricsAddr, "METRICS_ADDR")
	e.setInt(&cfg.PairCacheSize, "PAIR_CACHE_SIZE")

	return e.errs
}

// envReader only touches a field when its variable is set and non-empty.
type envReader struct {
	errs []string
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	return v, v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Sprintf("%s%s=%q: %v", envPrefix, key, v, err))
}

func (e *envReader) setStr(dst *string, key string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(dst *int, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(dst *int64, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setOptInt64(dst **int64, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = &n
	}
}

func (e *envReader) setDuration(dst *duration, key string) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		dst.Duration = d
	}
}

func (e *envReader) setList(dst *[]string, key string) {
	if v, ok := e.lookup(key); ok {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
