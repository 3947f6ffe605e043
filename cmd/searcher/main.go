package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "searcher",
		Short: "Relay-protected DEX arbitrage searcher",
		Long: `Watches uniswap v2 style pools for two-hop price gaps, gates each
candidate on liquidity, slippage and gas, and submits profitable ones as
private bundles through a flashbots-compatible relay.

Configuration comes from an optional TOML file, a .env file and SEARCHER_*
environment variables, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")

	run := runCmd(&configPath)
	root.RunE = run.RunE

	root.AddCommand(run)
	root.AddCommand(scanCmd(&configPath))
	root.AddCommand(checkConfigCmd(&configPath))
	return root
}
