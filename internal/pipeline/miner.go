package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pkg/logger"

	"github.com/google/uuid"
)

// miningJob carries the metadata of one mine-and-append attempt so every log
// line about a batch can be correlated by a single identifier.
type miningJob struct {
	jobID      string    // unique identifier for this mining attempt (UUIDv7)
	receivedAt time.Time // when the batch was handed to the miner
	size       int       // number of transactions in the batch
}

// newMiningJob creates the processing metadata for the given batch.
func newMiningJob(batch []ledger.Transaction) miningJob {
	return miningJob{
		jobID:      uuid.Must(uuid.NewV7()).String(),
		receivedAt: time.Now().UTC(),
		size:       len(batch),
	}
}

// mineBatches is the miner worker loop. It gathers validated transactions
// from the mining queue into a batch and flushes it into the ledger either
// when the batch reaches the configured size or when the flush interval
// elapses with stragglers waiting. On shutdown any gathered transactions are
// flushed one last time so nothing admitted into the pipeline is lost.
func (s *service) mineBatches(ctx context.Context, miningCh <-chan ledger.Transaction) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]ledger.Transaction, 0, s.batchSize)

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				s.flushBatch(context.WithoutCancel(ctx), batch)
			}
			return

		case tx, ok := <-miningCh:
			if !ok {
				if len(batch) > 0 {
					s.flushBatch(context.WithoutCancel(ctx), batch)
				}
				return
			}

			batch = append(batch, tx)
			if len(batch) >= s.batchSize {
				s.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// flushBatch transfers the batch into the ledger and drives one
// mine-and-append sequence. The ledger serializes the whole sequence under
// its own mutex; the miner only decides when a batch is worth mining.
//
// The mined block is then archived (with retries) and announced to the
// notifier; failures on either are logged and do not unwind the append.
func (s *service) flushBatch(ctx context.Context, batch []ledger.Transaction) {
	ctx, span := s.tracer.Start(ctx, "pipeline.mine_batch")
	defer span.End()

	job := newMiningJob(batch)

	for _, tx := range batch {
		if err := s.ledger.AddTransaction(tx); err != nil {
			// already validated at intake; reaching this means the
			// transaction was mutated in flight
			logger.Error(ctx, "admission rejected a previously validated transaction",
				"mining.job_id", job.jobID,
				"transaction.id", tx.ID,
				"error", err,
			)
		}
	}

	block := s.ledger.MineBlock()
	if block == nil {
		return
	}

	s.minedBlockCounter.Add(ctx, 1)
	logger.Info(ctx, "block mined",
		"mining.job_id", job.jobID,
		"block.index", block.Index,
		"block.hash", block.Hash,
		"block.nonce", block.Nonce,
		"block.transactions", len(block.Transactions),
		"mining.duration", time.Since(job.receivedAt),
	)

	if err := s.archiveBlock(ctx, *block); err != nil {
		logger.Error(ctx, "failed to archive mined block",
			"mining.job_id", job.jobID,
			"block.index", block.Index,
			"block.hash", block.Hash,
			"error", err,
		)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyBlockMined(ctx, *block); err != nil {
			logger.Error(ctx, "failed to notify mined block",
				"mining.job_id", job.jobID,
				"block.index", block.Index,
				"block.hash", block.Hash,
				"error", err,
			)
		}
	}
}

// startMiner launches mineBatches in a background goroutine tracked by the
// pipeline's WaitGroup. It returns immediately; the loop runs until the
// context is canceled or the mining queue is closed.
func (s *service) startMiner(ctx context.Context, wg *sync.WaitGroup, miningCh <-chan ledger.Transaction) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.mineBatches(ctx, miningCh)
	}()
}
