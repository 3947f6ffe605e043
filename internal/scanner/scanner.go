package scanner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pulkyeet/relay-arb/internal/arbitrage"
	"github.com/pulkyeet/relay-arb/internal/bundle"
	"github.com/pulkyeet/relay-arb/internal/eth"
	"github.com/pulkyeet/relay-arb/internal/metrics"
)

type Discoverer interface {
	Discover(ctx context.Context, block uint64) ([]arbitrage.Opportunity, error)
}

type Gate interface {
	Evaluate(ctx context.Context, opp arbitrage.Opportunity) (*arbitrage.Decision, error)
}

type Executor interface {
	Execute(ctx context.Context, d *arbitrage.Decision) (bundle.Result, error)
}

type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// LedgerSizer reports how many bundles the ledger holds. Optional.
type LedgerSizer interface {
	Len() int
}

// Evaluation is one candidate after the gate: either a Decision or the
// reason it has none.
type Evaluation struct {
	Opportunity arbitrage.Opportunity
	Decision    *arbitrage.Decision
	Err         error
}

func (e Evaluation) Accepted() bool {
	return e.Err == nil && e.Decision != nil
}

type Report struct {
	TickID      string
	Block       uint64
	Evaluations []Evaluation
	Results     []bundle.Result
}

type Config struct {
	Chain     BlockReader
	Discovery Discoverer
	Gate      Gate
	Executor  Executor
	Ledger    LedgerSizer
	Metrics   *metrics.Metrics
	Interval  time.Duration
}

// Scanner runs discovery, the gate and execution once per tick until its
// context ends. Nothing that goes wrong inside a tick stops the loop.
type Scanner struct {
	chain     BlockReader
	discovery Discoverer
	gate      Gate
	executor  Executor
	ledger    LedgerSizer
	metrics   *metrics.Metrics
	interval  time.Duration
	logger    zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Scanner {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Scanner{
		chain:     cfg.Chain,
		discovery: cfg.Discovery,
		gate:      cfg.Gate,
		executor:  cfg.Executor,
		ledger:    cfg.Ledger,
		metrics:   m,
		interval:  interval,
		logger:    logger.With().Str("component", "scanner").Logger(),
	}
}

// Run loops until ctx is cancelled, which is the only way it returns.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("scanner started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scanner stopped")
			return nil
		case <-timer.C:
		}

		if _, err := s.Tick(ctx); err != nil {
			s.recordError(err)
		}
		timer.Reset(s.interval)
	}
}

// Tick performs one full pass. Each accepted candidate is executed before
// the next one is gated, so every decision is taken on state that already
// reflects the bundles before it. The returned error is whatever stopped
// the pass early; per-candidate failures are logged and left in the report.
func (s *Scanner) Tick(ctx context.Context) (report Report, err error) {
	report.TickID = uuid.NewString()
	log := s.logger.With().Str("tick", report.TickID).Logger()
	start := time.Now()

	s.metrics.Ticks.Inc()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
			log.Error().Str("stack", string(debug.Stack())).Err(err).Msg("recovered")
		}
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	report.Block, report.Evaluations, err = s.evaluate(ctx, log, func(log zerolog.Logger, ev Evaluation) error {
		// checked before each bundle so shutdown never starts a new one
		if err := ctx.Err(); err != nil {
			return err
		}
		if res, ok := s.execute(ctx, log, ev); ok {
			report.Results = append(report.Results, res)
		}
		return nil
	})

	if s.ledger != nil {
		s.metrics.LedgerEntries.Set(float64(s.ledger.Len()))
	}
	if err != nil {
		return report, err
	}

	log.Debug().
		Uint64("block", report.Block).
		Int("candidates", len(report.Evaluations)).
		Int("bundles", len(report.Results)).
		Dur("took", time.Since(start)).
		Msg("tick done")
	return report, nil
}

// Evaluate runs discovery and the gate against the current head without
// building anything. It backs the dry-run scan command.
func (s *Scanner) Evaluate(ctx context.Context) (uint64, []Evaluation, error) {
	return s.evaluate(ctx, s.logger, nil)
}

// evaluate gates each discovered candidate in turn and hands accepted ones
// to onAccept before moving on. An error from onAccept ends the pass.
func (s *Scanner) evaluate(ctx context.Context, log zerolog.Logger, onAccept func(zerolog.Logger, Evaluation) error) (uint64, []Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	block, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("block number: %w", err)
	}
	log = log.With().Uint64("block", block).Logger()

	opps, err := s.discovery.Discover(ctx, block)
	if err != nil {
		return block, nil, fmt.Errorf("discover at %d: %w", block, err)
	}
	s.metrics.Opportunities.Add(float64(len(opps)))

	evals := make([]Evaluation, 0, len(opps))
	for _, opp := range opps {
		if err := ctx.Err(); err != nil {
			return block, evals, err
		}

		d, err := s.gate.Evaluate(ctx, opp)
		ev := Evaluation{Opportunity: opp, Decision: d, Err: err}
		evals = append(evals, ev)

		switch arbitrage.Classify(err) {
		case arbitrage.ClassNone:
			log.Info().
				Str("opportunity", opp.String()).
				Str("net_eth", eth.FormatEther(d.NetProfit)).
				Msg("opportunity accepted")
			if onAccept != nil {
				if err := onAccept(log, ev); err != nil {
					return block, evals, err
				}
			}
		case arbitrage.ClassRejection:
			var rej *arbitrage.Rejection
			errors.As(err, &rej)
			s.metrics.GateRejections.WithLabelValues(string(rej.Reason)).Inc()
			log.Debug().Str("opportunity", opp.String()).Str("reason", string(rej.Reason)).Msg(rej.Detail)
		case arbitrage.ClassShutdown:
			return block, evals, err
		default:
			s.countError(err)
			log.Warn().Err(err).Str("opportunity", opp.String()).Msg("candidate skipped")
		}
	}
	return block, evals, nil
}

// execute runs one accepted candidate through the executor. ok is false
// when no bundle came out of it.
func (s *Scanner) execute(ctx context.Context, log zerolog.Logger, ev Evaluation) (bundle.Result, bool) {
	res, err := s.executor.Execute(ctx, ev.Decision)
	if err != nil {
		if errors.Is(err, bundle.ErrDuplicateBundle) {
			log.Debug().Str("opportunity", ev.Opportunity.String()).Msg("bundle already handled for this block")
			return bundle.Result{}, false
		}
		s.countError(err)
		log.Warn().Err(err).Str("opportunity", ev.Opportunity.String()).Msg("bundle not built")
		return bundle.Result{}, false
	}
	if res.Outcome.Terminal() {
		s.metrics.BundleOutcomes.WithLabelValues(res.Outcome.String()).Inc()
	}
	return res, true
}

func (s *Scanner) countError(err error) arbitrage.ErrorClass {
	class := arbitrage.Classify(err)
	s.metrics.TickErrors.WithLabelValues(class.String()).Inc()
	return class
}

func (s *Scanner) recordError(err error) {
	switch class := s.countError(err); class {
	case arbitrage.ClassShutdown:
		s.logger.Debug().Err(err).Msg("tick interrupted")
	default:
		s.logger.Warn().Err(err).Str("class", class.String()).Msg("tick failed")
	}
}
