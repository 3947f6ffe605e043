package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/pulkyeet/relay-arb/internal/arbitrage"
	"github.com/pulkyeet/relay-arb/internal/bundle"
	"github.com/pulkyeet/relay-arb/internal/config"
	"github.com/pulkyeet/relay-arb/internal/eth"
	"github.com/pulkyeet/relay-arb/internal/metrics"
	"github.com/pulkyeet/relay-arb/internal/relay"
	"github.com/pulkyeet/relay-arb/internal/scanner"
)

type app struct {
	client  *eth.Client
	ledger  *bundle.Ledger
	scanner *scanner.Scanner
}

func (a *app) Close() {
	a.client.Close()
}

// wire dials the node and builds every component from cfg. Any failure
// here is fatal.
func wire(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) (*app, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
	defer cancel()

	client, err := eth.NewClient(dialCtx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}

	a, err := build(dialCtx, client, cfg, m, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, client *eth.Client, cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) (*app, error) {
	chainID := new(big.Int).SetUint64(cfg.ChainID)
	if cfg.ChainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
		chainID = id
	}

	wallet, err := eth.NewWallet(cfg.PrivateKey, chainID, client)
	if err != nil {
		return nil, err
	}

	oracle, err := arbitrage.NewPoolOracle(client, cfg.PairCacheSize, cfg.RPCTimeout)
	if err != nil {
		return nil, err
	}
	contract, err := arbitrage.NewArbitrageContract(cfg.ContractAddress)
	if err != nil {
		return nil, err
	}

	gate := arbitrage.NewProfitabilityGate(
		oracle,
		arbitrage.SlippageModel{ToleranceBps: cfg.SlippageToleranceBps, MaxSlippage: cfg.MaxSlippage},
		arbitrage.NewCostEstimator(client, cfg.RPCTimeout),
		contract,
		wallet.Address(),
		logger,
	)
	discovery := arbitrage.NewDiscovery(oracle, arbitrage.DiscoveryConfig{
		DEXes:       cfg.DEXes,
		BaseToken:   cfg.BaseToken,
		QuoteTokens: cfg.QuoteTokens,
		TradeAmount: cfg.TradeAmount,
		MinProfit:   cfg.MinProfit,
	}, logger)

	relayClient, err := relay.NewClient(cfg.RelayURL, cfg.RelayAuthKey, client, relay.Options{
		HTTPTimeout: cfg.RPCTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	ledger := bundle.NewLedger()
	executor := bundle.NewExecutor(bundle.ExecutorConfig{
		Chain:            client,
		Signer:           wallet,
		Relay:            relayClient,
		Contract:         contract,
		Ledger:           ledger,
		InclusionTimeout: cfg.InclusionTimeout,
	}, logger)

	logger.Info().
		Str("wallet", wallet.Address().Hex()).
		Str("chain_id", chainID.String()).
		Int("dexes", len(cfg.DEXes)).
		Msg("components wired")

	return &app{
		client: client,
		ledger: ledger,
		scanner: scanner.New(scanner.Config{
			Chain:     client,
			Discovery: discovery,
			Gate:      gate,
			Executor:  executor,
			Ledger:    ledger,
			Metrics:   m,
			Interval:  cfg.PollInterval,
		}, logger),
	}, nil
}
