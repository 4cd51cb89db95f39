package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"
)

// GenesisPreviousHash is the sentinel back-link carried by the genesis block.
const GenesisPreviousHash = "0"

// Block is an immutable-once-mined container for an ordered batch of
// transactions. It links to its predecessor through PreviousHash and proves
// work through a nonce found by Mine. Any field write after mining is
// tampering, not an update, and is caught by IsValid.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    time.Time     `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previous_hash"`
	Hash         string        `json:"hash"`
	Nonce        uint64        `json:"nonce"`
}

// newBlock constructs a block with a provisional hash over the given
// transactions, stamped with the current UTC time. The caller is expected to
// mine it before appending it to a chain.
func newBlock(index uint64, previousHash string, transactions []Transaction) Block {
	b := Block{
		Index:        index,
		Timestamp:    time.Now().UTC(),
		Transactions: transactions,
		PreviousHash: previousHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash derives the block's sha256 digest, rendered as lowercase hex,
// from a canonical string encoding of its fields. Each transaction
// contributes its id, kind tag, and timestamp; the payload body is covered
// transitively because the id is unique and the transaction is immutable
// after admission.
//
// The function is pure: identical fields always produce identical output.
func (b Block) ComputeHash() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(b.Index, 10))
	sb.WriteString(strconv.FormatInt(b.Timestamp.UnixNano(), 10))
	sb.WriteString(b.PreviousHash)
	sb.WriteString(strconv.FormatUint(b.Nonce, 10))
	for _, tx := range b.Transactions {
		sb.WriteString(tx.ID)
		sb.WriteString(string(tx.Kind))
		sb.WriteString(strconv.FormatInt(tx.Timestamp.UnixNano(), 10))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Mine searches for a nonce whose hash carries at least difficulty leading
// zero hex characters, incrementing monotonically from the current nonce.
// Difficulty 0 completes immediately. There is no upper bound on attempts;
// the difficulty is assumed low enough to terminate quickly.
func (b *Block) Mine(difficulty int) {
	prefix := strings.Repeat("0", difficulty)

	b.Hash = b.ComputeHash()
	for !strings.HasPrefix(b.Hash, prefix) {
		b.Nonce++
		b.Hash = b.ComputeHash()
	}
}

// IsValid recomputes the hash from the block's current fields and compares
// it to the stored hash. A mismatch means the block was mutated after
// mining, independent of whether its chain linkage still holds.
func (b Block) IsValid() bool {
	return b.Hash == b.ComputeHash()
}

// MeetsDifficulty reports whether the stored hash satisfies the given
// proof-of-work difficulty.
func (b Block) MeetsDifficulty(difficulty int) bool {
	return strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty))
}

// clone returns a deep copy of the block so callers can hold a snapshot
// without aliasing the chain's transaction slices.
func (b Block) clone() Block {
	c := b
	c.Transactions = slices.Clone(b.Transactions)
	return c
}
