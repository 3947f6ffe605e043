package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pulkyeet/relay-arb/internal/arbitrage"
	"github.com/pulkyeet/relay-arb/internal/config"
	"github.com/pulkyeet/relay-arb/internal/eth"
	"github.com/pulkyeet/relay-arb/internal/logging"
	"github.com/pulkyeet/relay-arb/internal/metrics"
	"github.com/pulkyeet/relay-arb/internal/scanner"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan and execute until interrupted (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			logger.Info().EmbedObject(cfg).Msg("searcher starting")

			ctx := cmd.Context()
			m := metrics.New()
			a, err := wire(ctx, cfg, m, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.scanner.Run(ctx)
			})
			if cfg.MetricsAddr != "" {
				g.Go(func() error {
					return metrics.Serve(ctx, cfg.MetricsAddr, m, logger)
				})
			}

			err = g.Wait()
			logger.Info().Int("bundles", a.ledger.Len()).Msg("searcher stopped")
			return err
		},
	}
}

func scanCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one discovery and gate pass without submitting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}

			a, err := wire(cmd.Context(), cfg, metrics.New(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			block, evals, err := a.scanner.Evaluate(cmd.Context())
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printEvaluations(cmd.OutOrStdout(), block, evals)
			return nil
		},
	}
}

func checkConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d dexes, %d quote tokens, min profit %s ETH\n",
				len(cfg.DEXes), len(cfg.QuoteTokens), eth.FormatEther(cfg.MinProfit))
			return nil
		},
	}
}

func printEvaluations(w io.Writer, block uint64, evals []scanner.Evaluation) {
	fmt.Fprintf(w, "block %d: %d candidates\n\n", block, len(evals))
	if len(evals) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tGROSS (ETH)\tGAS (ETH)\tNET (ETH)\tDECISION")
	for _, ev := range evals {
		gross := eth.FormatEther(ev.Opportunity.GrossProfit)
		if ev.Accepted() {
			d := ev.Decision
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\taccept\n",
				ev.Opportunity, gross, eth.FormatEther(d.Gas.Cost), eth.FormatEther(d.NetProfit))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t-\t-\t%s\n", ev.Opportunity, gross, decisionText(ev.Err))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\naccepted: %s of %d\n", acceptedShare(evals), len(evals))
}

func decisionText(err error) string {
	var rej *arbitrage.Rejection
	if errors.As(err, &rej) {
		return fmt.Sprintf("reject %s: %s", rej.Reason, rej.Detail)
	}
	return "error: " + err.Error()
}

func acceptedShare(evals []scanner.Evaluation) string {
	n := 0
	for _, ev := range evals {
		if ev.Accepted() {
			n++
		}
	}
	return decimal.NewFromInt(int64(n)).
		Div(decimal.NewFromInt(int64(len(evals)))).
		Mul(decimal.NewFromInt(100)).
		StringFixed(1) + "%"
}
