package pipeline

import (
	"context"

	"github.com/gabapcia/supplyledger/internal/ledger"
)

// MinedBlockNotifier announces freshly mined blocks to external systems,
// e.g. a downstream traceability consumer or an operator webhook.
//
// Notification is best-effort: a delivery failure is logged by the miner and
// never unwinds the chain append.
type MinedBlockNotifier interface {
	// NotifyBlockMined is invoked once per mined block, after the block has
	// been appended to the chain and archived.
	NotifyBlockMined(ctx context.Context, block ledger.Block) error
}
