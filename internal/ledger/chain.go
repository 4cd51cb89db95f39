// Package ledger implements the chain core: polymorphic supply-chain
// transactions, proof-of-work blocks, and the single-authority chain manager
// that admits, batches, mines, verifies, and queries them.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gabapcia/supplyledger/internal/pkg/types"
)

// ErrChainIntegrity is returned by Load when the supplied chain fails
// integrity verification and must not replace the current one.
var ErrChainIntegrity = errors.New("chain failed integrity verification")

// ErrEmptyChain is returned by Load when the supplied chain does not contain
// at least a genesis block.
var ErrEmptyChain = errors.New("chain must contain at least the genesis block")

// FailureKind classifies which integrity check a block failed.
type FailureKind string

const (
	// FailureLinkage means a block's back-link does not match its
	// predecessor's hash.
	FailureLinkage FailureKind = "linkage_mismatch"

	// FailureSelfHash means a block's stored hash does not match the hash
	// recomputed from its current fields.
	FailureSelfHash FailureKind = "self_hash_mismatch"

	// FailureProofOfWork means a block's hash does not satisfy the
	// configured mining difficulty.
	FailureProofOfWork FailureKind = "proof_of_work"
)

// IntegrityReport is the structured result of a chain verification walk. It
// localizes the first failing block and the check it failed, so callers can
// report tampering precisely instead of a bare boolean.
type IntegrityReport struct {
	Valid        bool        `json:"valid"`
	FailingIndex int         `json:"failing_index"` // -1 when the chain is valid
	Kind         FailureKind `json:"failure_kind,omitempty"`
}

// Ledger owns the ordered block chain and the set of admitted transactions
// not yet mined. It is the single authority over chain appends: no other
// component inserts blocks.
//
// One mutex covers the whole mine-and-append sequence, including the
// CPU-bound nonce search. Serializing the probe is a throughput ceiling, but
// releasing the lock around it would let concurrent miners interleave
// half-built chain states.
type Ledger struct {
	mu         sync.Mutex
	chain      []Block
	pending    []Transaction
	difficulty int
}

// New creates a ledger with a genesis block mined at the given difficulty.
// The genesis block carries no transactions and the sentinel back-link "0";
// it is mined like any other block so every hash in the chain satisfies the
// same proof-of-work rule.
func New(difficulty int) *Ledger {
	genesis := newBlock(0, GenesisPreviousHash, nil)
	genesis.Mine(difficulty)

	return &Ledger{
		chain:      []Block{genesis},
		difficulty: difficulty,
	}
}

// Difficulty returns the proof-of-work difficulty the ledger mines at.
func (l *Ledger) Difficulty() int {
	return l.difficulty
}

// AddTransaction is the single admission gate. The transaction is validated
// in full; on success it is appended to the pending queue in FIFO order, on
// failure it is rejected without any state change. Rejections carry
// validator.ErrValidation plus the offending field.
func (l *Ledger) AddTransaction(tx Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, tx)
	return nil
}

// PendingCount returns the number of admitted transactions not yet mined.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.pending)
}

// MineBlock drains the pending queue into a new block, mines it at the
// configured difficulty, and appends it to the chain. It returns a copy of
// the mined block, or nil when nothing is pending (a normal no-op, not an
// error).
//
// The entire sequence runs under the ledger mutex, so the append is
// all-or-nothing: no observer ever sees a partially mined or partially
// linked chain.
func (l *Ledger) MineBlock() *Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil
	}

	tip := l.chain[len(l.chain)-1]
	block := newBlock(uint64(len(l.chain)), tip.Hash, slices.Clone(l.pending))
	block.Mine(l.difficulty)

	l.chain = append(l.chain, block)
	l.pending = nil

	mined := block.clone()
	return &mined
}

// Verify walks the chain and checks, for every block, the back-link to its
// predecessor, the self-hash, and the proof-of-work prefix, failing fast at
// the first violated check.
//
// The linkage check runs first so that a tampered back-link is reported as
// linkage_mismatch; the same mutation necessarily breaks the block's
// self-hash too, since the back-link is part of the hash input.
func (l *Ledger) Verify() IntegrityReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	return verifyChain(l.chain, l.difficulty)
}

// VerifyBlocks runs the verification walk over an arbitrary block sequence,
// e.g. a chain read back from an archive, against the given difficulty.
func VerifyBlocks(blocks []Block, difficulty int) IntegrityReport {
	return verifyChain(blocks, difficulty)
}

// verifyChain is the lock-free verification walk shared by Verify and Load.
func verifyChain(chain []Block, difficulty int) IntegrityReport {
	for i, block := range chain {
		if i > 0 && block.PreviousHash != chain[i-1].Hash {
			return IntegrityReport{FailingIndex: i, Kind: FailureLinkage}
		}

		if !block.IsValid() {
			return IntegrityReport{FailingIndex: i, Kind: FailureSelfHash}
		}

		if !block.MeetsDifficulty(difficulty) {
			return IntegrityReport{FailingIndex: i, Kind: FailureProofOfWork}
		}
	}

	return IntegrityReport{Valid: true, FailingIndex: -1}
}

// TransactionHistory returns every mined transaction in chain order. Blocks
// are chronological by construction and transactions keep their mining-batch
// insertion order, so the concatenation itself is the chronological
// guarantee; nothing is re-sorted.
func (l *Ledger) TransactionHistory() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	var history []Transaction
	for _, block := range l.chain {
		history = append(history, block.Transactions...)
	}
	return history
}

// ProductHistory filters the full history down to the transactions that
// refer to the given product, preserving chain order.
func (l *Ledger) ProductHistory(productID string) []Transaction {
	var matches []Transaction
	for _, tx := range l.TransactionHistory() {
		if tx.Payload != nil && tx.Payload.Product() == productID {
			matches = append(matches, tx)
		}
	}
	return matches
}

// HistoryByProduct groups the full history by product identifier, each
// group preserving chain order.
func (l *Ledger) HistoryByProduct() map[string][]Transaction {
	grouped := types.NewDefaultMap[string](func() []Transaction { return nil })
	for _, tx := range l.TransactionHistory() {
		if tx.Payload == nil {
			continue
		}

		product := tx.Payload.Product()
		grouped.Set(product, append(grouped.Get(product), tx))
	}
	return grouped.ToMap()
}

// Height returns the number of blocks in the chain, genesis included.
func (l *Ledger) Height() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.chain)
}

// Block returns a copy of the block at the given index, or false if the
// index is out of range.
func (l *Ledger) Block(index int) (Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.chain) {
		return Block{}, false
	}
	return l.chain[index].clone(), true
}

// Snapshot returns a deep copy of the whole chain for the persistence
// collaborator. The ledger itself performs no I/O.
func (l *Ledger) Snapshot() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make([]Block, len(l.chain))
	for i, block := range l.chain {
		snapshot[i] = block.clone()
	}
	return snapshot
}

// Load rehydrates a previously persisted chain, bypassing mining: stored
// hashes and nonces are taken as given and only checked, never recomputed
// and overwritten. The supplied chain replaces the current one only if every
// block passes the same verification walk used by Verify, indices are
// contiguous from zero, and the genesis back-link carries the sentinel.
func (l *Ledger) Load(blocks []Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	if blocks[0].PreviousHash != GenesisPreviousHash {
		return fmt.Errorf("%w: genesis back-link is not the sentinel %q", ErrChainIntegrity, GenesisPreviousHash)
	}

	for i, block := range blocks {
		if block.Index != uint64(i) {
			return fmt.Errorf("%w: block at position %d carries index %d", ErrChainIntegrity, i, block.Index)
		}
	}

	if report := verifyChain(blocks, l.difficulty); !report.Valid {
		return fmt.Errorf("%w: %s at index %d", ErrChainIntegrity, report.Kind, report.FailingIndex)
	}

	chain := make([]Block, len(blocks))
	for i, block := range blocks {
		chain[i] = block.clone()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.chain = chain
	return nil
}
