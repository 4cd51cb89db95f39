package pipeline

import (
	"context"
	"errors"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pkg/logger"
)

// ErrNoChainArchived is returned by LoadChain when the archive holds no
// blocks yet for this ledger.
var ErrNoChainArchived = errors.New("no chain archived")

// BlockArchive persists mined blocks durably and replays them on startup.
// The ledger core performs no I/O itself; this is the persistence
// collaborator boundary.
type BlockArchive interface {
	// SaveBlock appends one mined block to the archive. Blocks are saved in
	// mining order, so the archive's order is the chain's order.
	SaveBlock(ctx context.Context, block ledger.Block) error

	// LoadChain returns every archived block in chain order, or
	// ErrNoChainArchived when the archive is empty.
	LoadChain(ctx context.Context) ([]ledger.Block, error)
}

// nopArchive is the no-op BlockArchive used when no durable storage is
// configured. It stores nothing and always reports an empty archive.
type nopArchive struct{}

func (nopArchive) SaveBlock(_ context.Context, _ ledger.Block) error {
	return nil
}

func (nopArchive) LoadChain(_ context.Context) ([]ledger.Block, error) {
	return nil, ErrNoChainArchived
}

// archiveBlock writes one block to the archive under the configured retry
// policy. Archive writes are expected to fail only transiently; the retry
// absorbs those, and a persistent failure surfaces to the caller.
func (s *service) archiveBlock(ctx context.Context, block ledger.Block) error {
	return s.retry.Execute(ctx, func() error {
		return s.archive.SaveBlock(ctx, block)
	})
}

// rehydrate restores the ledger from the archive on startup. Archived blocks
// replay through the ledger's load path, which checks hashes and linkage but
// never re-mines. A fresh archive is seeded with the chain the ledger
// already holds (the mined genesis block), so later restarts replay from a
// complete chain.
func (s *service) rehydrate(ctx context.Context) error {
	chain, err := s.archive.LoadChain(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoChainArchived) {
			return err
		}

		for _, block := range s.ledger.Snapshot() {
			if err := s.archiveBlock(ctx, block); err != nil {
				return err
			}
		}
		return nil
	}

	if err := s.ledger.Load(chain); err != nil {
		return err
	}

	logger.Info(ctx, "chain rehydrated from archive",
		"chain.height", len(chain),
	)
	return nil
}
