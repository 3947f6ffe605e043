package bundle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pulkyeet/relay-arb/internal/arbitrage"
	"github.com/pulkyeet/relay-arb/internal/eth"
)

// Signer is satisfied by *eth.Wallet.
type Signer interface {
	Address() common.Address
	SignCalls(ctx context.Context, calls []eth.Call) ([]*types.Transaction, error)
}

type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Relay is a private bundle relay. A bundle is only ever sent after it
// simulated cleanly through the same relay.
type Relay interface {
	Simulate(ctx context.Context, b *Bundle) (*SimulationResult, error)
	SendBundle(ctx context.Context, b *Bundle) (Submission, error)
}

// Submission is a bundle the relay accepted. Wait blocks until the bundle
// lands, its target block passes, or ctx ends; a nil receipt means it was
// not included.
type Submission interface {
	BundleHash() common.Hash
	Wait(ctx context.Context) (*types.Receipt, error)
}

type TxSimulation struct {
	TxHash  common.Hash
	GasUsed uint64
	Error   string
	Revert  string
}

type SimulationResult struct {
	Success      bool
	Error        string
	TotalGasUsed uint64
	CoinbaseDiff *big.Int
	Transactions []TxSimulation
}

// FirstFailure describes the first failing tx, or the bundle-level error.
func (r *SimulationResult) FirstFailure() string {
	if r.Error != "" {
		return r.Error
	}
	for _, tx := range r.Transactions {
		if tx.Error != "" || tx.Revert != "" {
			return fmt.Sprintf("tx %s: %s %s", tx.TxHash.Hex(), tx.Error, tx.Revert)
		}
	}
	return ""
}

type Result struct {
	Hash        common.Hash
	TargetBlock uint64
	Outcome     Outcome
	Detail      string
	Receipt     *types.Receipt
}

// Executor turns an accepted decision into a bundle and drives it through
// simulate, submit and inclusion. Only one bundle is in flight at a time.
type Executor struct {
	mu               sync.Mutex
	chain            BlockReader
	signer           Signer
	relay            Relay
	contract         *arbitrage.ArbitrageContract
	ledger           *Ledger
	inclusionTimeout time.Duration
	logger           zerolog.Logger
}

type ExecutorConfig struct {
	Chain            BlockReader
	Signer           Signer
	Relay            Relay
	Contract         *arbitrage.ArbitrageContract
	Ledger           *Ledger
	InclusionTimeout time.Duration
}

func NewExecutor(cfg ExecutorConfig, logger zerolog.Logger) *Executor {
	return &Executor{
		chain:            cfg.Chain,
		signer:           cfg.Signer,
		relay:            cfg.Relay,
		contract:         cfg.Contract,
		ledger:           cfg.Ledger,
		inclusionTimeout: cfg.InclusionTimeout,
		logger:           logger.With().Str("component", "executor").Logger(),
	}
}

// Execute returns an error only when no bundle was built (a build failure
// or a duplicate). Simulation, submission and inclusion failures are
// outcomes, reported in the Result.
func (e *Executor) Execute(ctx context.Context, d *arbitrage.Decision) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.build(ctx, d)
	if err != nil {
		return Result{}, err
	}

	hash := b.Hash()
	log := e.logger.With().
		Str("bundle", hash.Hex()).
		Uint64("target_block", b.TargetBlock).
		Logger()

	if err := e.ledger.Begin(hash, b.TargetBlock); err != nil {
		return Result{}, err
	}
	log.Info().
		Str("opportunity", d.Opportunity.String()).
		Str("net_eth", eth.FormatEther(d.NetProfit)).
		Msg("bundle built")

	res := Result{Hash: hash, TargetBlock: b.TargetBlock, Outcome: Built}

	sim, err := e.relay.Simulate(ctx, b)
	if err != nil {
		return e.advance(log, res, SimulatedFail, fmt.Sprintf("simulate: %v", err))
	}
	if !sim.Success {
		return e.advance(log, res, SimulatedFail, sim.FirstFailure())
	}
	if res, err = e.advance(log, res, SimulatedOk, fmt.Sprintf("gas used %d", sim.TotalGasUsed)); err != nil {
		return res, err
	}

	sub, err := e.relay.SendBundle(ctx, b)
	if err != nil {
		return e.advance(log, res, SubmissionError, err.Error())
	}
	if res, err = e.advance(log, res, Submitted, ""); err != nil {
		return res, err
	}

	waitCtx := ctx
	if e.inclusionTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.inclusionTimeout)
		defer cancel()
	}
	receipt, err := sub.Wait(waitCtx)

	// shutting down: leave the bundle as submitted rather than block
	if ctx.Err() != nil {
		log.Warn().Msg("shutdown while awaiting inclusion, bundle abandoned")
		return res, nil
	}
	if err != nil {
		return e.advance(log, res, NotIncluded, err.Error())
	}
	if receipt == nil {
		return e.advance(log, res, NotIncluded, "target block passed")
	}

	res.Receipt = receipt
	detail := fmt.Sprintf("block %d", receipt.BlockNumber)
	if receipt.Status != types.ReceiptStatusSuccessful {
		detail += ", reverted"
	}
	return e.advance(log, res, Included, detail)
}

func (e *Executor) build(ctx context.Context, d *arbitrage.Decision) (*Bundle, error) {
	if !d.Gas.GasLimit.IsUint64() {
		return nil, fmt.Errorf("gas limit %s out of range", d.Gas.GasLimit.Dec())
	}

	data, err := e.contract.Calldata(d.Opportunity)
	if err != nil {
		return nil, err
	}

	head, err := e.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	txs, err := e.signer.SignCalls(ctx, []eth.Call{{
		To:       e.contract.Address(),
		Data:     data,
		Gas:      d.Gas.GasLimit.Uint64(),
		GasPrice: d.Gas.GasPrice.ToBig(),
	}})
	if err != nil {
		return nil, fmt.Errorf("sign bundle: %w", err)
	}

	return New(txs, head+1)
}

func (e *Executor) advance(log zerolog.Logger, res Result, next Outcome, detail string) (Result, error) {
	if err := e.ledger.Advance(res.Hash, res.TargetBlock, next); err != nil {
		return res, err
	}
	res.Outcome = next
	res.Detail = detail

	ev := log.Info()
	switch next {
	case SimulatedFail, SubmissionError, NotIncluded:
		ev = log.Warn()
	}
	ev.Str("outcome", next.String()).Str("detail", detail).Msg("bundle outcome")

	return res, nil
}
