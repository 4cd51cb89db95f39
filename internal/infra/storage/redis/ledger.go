package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pipeline"
)

// ledgerKeyPrefix is the namespace prefix for all keys related to the
// ledger block archive.
const ledgerKeyPrefix = "ledger"

// ledgerChainKey is the Redis key of the list holding the archived chain.
// Blocks are appended in mining order, so the list order is the chain order.
// The format is:
//
//	"ledger:chain"
func ledgerChainKey() string {
	return fmt.Sprintf("%s:chain", ledgerKeyPrefix)
}

// SaveBlock appends one mined block, serialized as JSON, to the archived
// chain list.
//
// Parameters:
//   - ctx: context for timeout and cancellation.
//   - block: the mined block to persist, including its transactions.
//
// Returns:
//   - An error if serialization or the Redis operation fails.
func (c *client) SaveBlock(ctx context.Context, block ledger.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}

	return c.conn.RPush(ctx, ledgerChainKey(), data).Err()
}

// LoadChain retrieves every archived block in chain order.
//
// If the archive is empty, it returns pipeline.ErrNoChainArchived so the
// caller can seed a fresh chain instead.
//
// Parameters:
//   - ctx: context for timeout and cancellation.
//
// Returns:
//   - The archived chain, genesis first, or an error if retrieval or
//     decoding fails.
func (c *client) LoadChain(ctx context.Context) ([]ledger.Block, error) {
	entries, err := c.conn.LRange(ctx, ledgerChainKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, pipeline.ErrNoChainArchived
	}

	chain := make([]ledger.Block, len(entries))
	for i, entry := range entries {
		if err := json.Unmarshal([]byte(entry), &chain[i]); err != nil {
			return nil, err
		}
	}

	return chain, nil
}

// Compile-time assertion to ensure client implements the BlockArchive interface.
var _ pipeline.BlockArchive = new(client)
