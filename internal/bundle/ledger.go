package bundle

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type Entry struct {
	Hash        common.Hash
	TargetBlock uint64
	Outcome     Outcome
}

// a payload that missed its block may be built again for a later one, so
// the target is part of the identity
type ledgerKey struct {
	hash   common.Hash
	target uint64
}

// Ledger remembers every bundle the process has built so the same payload
// is never submitted twice for the same block. It lives for the life of
// the process.
type Ledger struct {
	mu      sync.RWMutex
	entries map[ledgerKey]Entry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[ledgerKey]Entry)}
}

// Begin records a new bundle as Built. It fails with ErrDuplicateBundle if
// the hash was already seen for targetBlock, whatever state it reached.
func (l *Ledger) Begin(hash common.Hash, targetBlock uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{hash: hash, target: targetBlock}
	if _, ok := l.entries[key]; ok {
		return fmt.Errorf("%w: %s at block %d", ErrDuplicateBundle, hash.Hex(), targetBlock)
	}
	l.entries[key] = Entry{Hash: hash, TargetBlock: targetBlock, Outcome: Built}
	return nil
}

// Advance moves a recorded bundle to its next outcome. Skipping a stage or
// going backwards is refused.
func (l *Ledger) Advance(hash common.Hash, targetBlock uint64, next Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{hash: hash, target: targetBlock}
	entry, ok := l.entries[key]
	if !ok {
		return fmt.Errorf("bundle %s for block %d not in ledger", hash.Hex(), targetBlock)
	}
	if !CanAdvance(entry.Outcome, next) {
		return fmt.Errorf("%w: %s -> %s", ErrOutcomeRegression, entry.Outcome, next)
	}
	entry.Outcome = next
	l.entries[key] = entry
	return nil
}

func (l *Ledger) Has(hash common.Hash, targetBlock uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[ledgerKey{hash: hash, target: targetBlock}]
	return ok
}

func (l *Ledger) Get(hash common.Hash, targetBlock uint64) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[ledgerKey{hash: hash, target: targetBlock}]
	return entry, ok
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
