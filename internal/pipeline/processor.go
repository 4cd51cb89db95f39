package pipeline

import (
	"context"
	"sync"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pkg/logger"
	"github.com/gabapcia/supplyledger/internal/pkg/types"
	"github.com/gabapcia/supplyledger/internal/pkg/x/chflow"
)

// processTransactions is the transaction processor worker loop. It drains
// the intake queue, runs each submission through the single admission
// validation gate, and forwards survivors to the mining queue. Invalid and
// duplicate submissions are logged and dropped; the submitting caller is
// never blocked waiting for this outcome.
//
// Validation is side-effect-free, so the loop holds no lock. The blocking
// channel receive doubles as the idle sleep between drain cycles.
func (s *service) processTransactions(ctx context.Context, intakeCh <-chan ledger.Transaction, miningCh chan<- ledger.Transaction) {
	forwarded := types.NewSet[string]()

	for {
		tx, ok := chflow.Receive(ctx, intakeCh)
		if !ok {
			return
		}

		if err := tx.Validate(); err != nil {
			s.rejectedCounter.Add(ctx, 1)
			logger.Warn(ctx, "transaction rejected at intake",
				"transaction.id", tx.ID,
				"transaction.kind", tx.Kind,
				"error", err,
			)
			continue
		}

		if forwarded.Contains(tx.ID) {
			logger.Warn(ctx, "duplicate transaction dropped",
				"transaction.id", tx.ID,
			)
			continue
		}
		forwarded.Add(tx.ID)

		if ok := chflow.Send(ctx, miningCh, tx); !ok {
			return
		}
	}
}

// startProcessor launches processTransactions in a background goroutine
// tracked by the pipeline's WaitGroup. It returns immediately; the loop runs
// until the context is canceled or the intake queue is closed.
func (s *service) startProcessor(ctx context.Context, wg *sync.WaitGroup, intakeCh <-chan ledger.Transaction, miningCh chan<- ledger.Transaction) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processTransactions(ctx, intakeCh, miningCh)
	}()
}
