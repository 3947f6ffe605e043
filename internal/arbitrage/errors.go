package arbitrage

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPoolUnavailable  = errors.New("pool unavailable")
	ErrDivideByZero     = errors.New("divide by zero")
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrEstimationFailed = errors.New("gas estimation failed")

	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrExcessiveSlippage     = errors.New("excessive slippage")
	ErrUnprofitableAfterGas  = errors.New("unprofitable after gas")
)

type RejectReason string

const (
	ReasonInsufficientLiquidity RejectReason = "insufficient_liquidity"
	ReasonExcessiveSlippage     RejectReason = "excessive_slippage"
	ReasonUnprofitableAfterGas  RejectReason = "unprofitable_after_gas"
)

// Rejection is the gate saying no. It is an expected outcome, not a fault.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func reject(reason RejectReason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected (%s): %s", r.Reason, r.Detail)
}

// Is lets errors.Is match a rejection against its reason sentinel.
func (r *Rejection) Is(target error) bool {
	switch r.Reason {
	case ReasonInsufficientLiquidity:
		return target == ErrInsufficientLiquidity
	case ReasonExcessiveSlippage:
		return target == ErrExcessiveSlippage
	case ReasonUnprofitableAfterGas:
		return target == ErrUnprofitableAfterGas
	}
	return false
}

type ErrorClass int

const (
	ClassNone ErrorClass = iota
	// ClassRejection: the candidate was evaluated and declined.
	ClassRejection
	// ClassTransient: the candidate could not be evaluated this tick.
	ClassTransient
	// ClassShutdown: the context ended.
	ClassShutdown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRejection:
		return "rejection"
	case ClassTransient:
		return "transient"
	case ClassShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Classify sorts a pipeline error for the scan loop. Anything that is not a
// rejection or a cancellation is treated as transient and retried next tick.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return ClassRejection
	}
	// a per-call deadline is a slow RPC, not a shutdown
	if errors.Is(err, context.Canceled) {
		return ClassShutdown
	}
	return ClassTransient
}
