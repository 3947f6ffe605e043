package bundle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrDuplicateBundle   = errors.New("bundle already processed")
	ErrOutcomeRegression = errors.New("bundle outcome cannot move backwards")
	ErrEmptyBundle       = errors.New("bundle has no transactions")
)

// Outcome is where a bundle is in its life: built, then simulated, then
// submitted, then resolved. Outcomes only ever move to the next stage.
type Outcome int

const (
	Built Outcome = iota
	SimulatedOk
	SimulatedFail
	Submitted
	SubmissionError
	Included
	NotIncluded
)

func (o Outcome) String() string {
	switch o {
	case Built:
		return "built"
	case SimulatedOk:
		return "simulated_ok"
	case SimulatedFail:
		return "simulated_fail"
	case Submitted:
		return "submitted"
	case SubmissionError:
		return "submission_error"
	case Included:
		return "included"
	case NotIncluded:
		return "not_included"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Terminal reports whether nothing can follow o.
func (o Outcome) Terminal() bool {
	switch o {
	case SimulatedFail, SubmissionError, Included, NotIncluded:
		return true
	}
	return false
}

// CanAdvance reports whether from -> to is a legal transition.
func CanAdvance(from, to Outcome) bool {
	switch from {
	case Built:
		return to == SimulatedOk || to == SimulatedFail
	case SimulatedOk:
		return to == Submitted || to == SubmissionError
	case Submitted:
		return to == Included || to == NotIncluded
	}
	return false
}

// Bundle is an ordered set of signed transactions targeted at one block.
type Bundle struct {
	Transactions []*types.Transaction
	TargetBlock  uint64
	hash         common.Hash
}

func New(txs []*types.Transaction, targetBlock uint64) (*Bundle, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyBundle
	}
	return &Bundle{
		Transactions: txs,
		TargetBlock:  targetBlock,
		hash:         Hash(txs),
	}, nil
}

// Hash is keccak256 over the concatenated transaction hashes, the same
// identity relays report back for a bundle.
func Hash(txs []*types.Transaction) common.Hash {
	buf := make([]byte, 0, len(txs)*common.HashLength)
	for _, tx := range txs {
		buf = append(buf, tx.Hash().Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

func (b *Bundle) Hash() common.Hash {
	return b.hash
}

// RawTransactions returns each tx in its signed wire encoding.
func (b *Bundle) RawTransactions() ([][]byte, error) {
	raw := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		enc, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode tx %d: %w", i, err)
		}
		raw[i] = enc
	}
	return raw, nil
}
