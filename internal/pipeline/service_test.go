package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pkg/logger"
	"github.com/gabapcia/supplyledger/internal/pkg/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	validator.Init()
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// archiveMock is an in-memory BlockArchive recording every save.
type archiveMock struct {
	mu      sync.Mutex
	saved   []ledger.Block
	chain   []ledger.Block // preloaded chain returned by LoadChain
	saveErr error
	loadErr error
}

func (a *archiveMock) SaveBlock(_ context.Context, block ledger.Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.saveErr != nil {
		return a.saveErr
	}
	a.saved = append(a.saved, block)
	return nil
}

func (a *archiveMock) LoadChain(_ context.Context) ([]ledger.Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loadErr != nil {
		return nil, a.loadErr
	}
	if len(a.chain) == 0 {
		return nil, ErrNoChainArchived
	}
	return a.chain, nil
}

func (a *archiveMock) savedBlocks() []ledger.Block {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ledger.Block, len(a.saved))
	copy(out, a.saved)
	return out
}

// notifierMock records every mined-block notification.
type notifierMock struct {
	mu     sync.Mutex
	blocks []ledger.Block
}

func (n *notifierMock) NotifyBlockMined(_ context.Context, block ledger.Block) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.blocks = append(n.blocks, block)
	return nil
}

func (n *notifierMock) notified() []ledger.Block {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]ledger.Block, len(n.blocks))
	copy(out, n.blocks)
	return out
}

func validCreation(id string) ledger.Transaction {
	return ledger.NewCreation(id, ledger.CreationPayload{
		SupplierID:  "supplier-1",
		ProductID:   "P1",
		ProductName: "Arabica Beans",
		Description: "25kg bag of green coffee",
		Origin:      "Minas Gerais",
	})
}

func validTransfer(id string) ledger.Transaction {
	return ledger.NewTransfer(id, ledger.TransferPayload{
		FromParty:    "supplier-1",
		ToParty:      "distributor-1",
		ProductID:    "P1",
		FromLocation: "Santos",
		ToLocation:   "Rotterdam",
		NewStatus:    ledger.StatusInTransit,
	})
}

func TestService_Start(t *testing.T) {
	t.Run("should return an error if started twice", func(t *testing.T) {
		s := New(ledger.New(0))
		t.Cleanup(s.Close)

		require.NoError(t, s.Start(t.Context()))
		assert.ErrorIs(t, s.Start(t.Context()), ErrServiceAlreadyStarted)
	})

	t.Run("should seed a fresh archive with the genesis block", func(t *testing.T) {
		archive := &archiveMock{}
		s := New(ledger.New(1), WithBlockArchive(archive))
		t.Cleanup(s.Close)

		require.NoError(t, s.Start(t.Context()))

		saved := archive.savedBlocks()
		require.Len(t, saved, 1)
		assert.Equal(t, uint64(0), saved[0].Index)
		assert.Equal(t, ledger.GenesisPreviousHash, saved[0].PreviousHash)
	})

	t.Run("should rehydrate the ledger from an archived chain", func(t *testing.T) {
		source := ledger.New(1)
		require.NoError(t, source.AddTransaction(validCreation("tx-1")))
		require.NotNil(t, source.MineBlock())

		l := ledger.New(1)
		s := New(l, WithBlockArchive(&archiveMock{chain: source.Snapshot()}))
		t.Cleanup(s.Close)

		require.NoError(t, s.Start(t.Context()))
		assert.Equal(t, 2, l.Height())
		assert.True(t, l.Verify().Valid)
	})

	t.Run("should refuse to start from a tampered archive", func(t *testing.T) {
		source := ledger.New(1)
		require.NoError(t, source.AddTransaction(validCreation("tx-1")))
		require.NotNil(t, source.MineBlock())

		chain := source.Snapshot()
		chain[1].Transactions[0].ID = "forged"

		s := New(ledger.New(1), WithBlockArchive(&archiveMock{chain: chain}))
		err := s.Start(t.Context())
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrChainIntegrity)
	})

	t.Run("should surface archive read failures", func(t *testing.T) {
		expectedErr := errors.New("archive unavailable")
		s := New(ledger.New(0), WithBlockArchive(&archiveMock{loadErr: expectedErr}))

		err := s.Start(t.Context())
		require.Error(t, err)
		assert.ErrorIs(t, err, expectedErr)
	})
}

func TestService_Submit(t *testing.T) {
	t.Run("should reject submissions before start", func(t *testing.T) {
		s := New(ledger.New(0))
		assert.ErrorIs(t, s.Submit(t.Context(), validCreation("tx-1")), ErrServiceNotStarted)
	})

	t.Run("should reject submissions after close", func(t *testing.T) {
		s := New(ledger.New(0))
		require.NoError(t, s.Start(t.Context()))
		s.Close()

		assert.ErrorIs(t, s.Submit(t.Context(), validCreation("tx-1")), ErrServiceNotStarted)
	})

	t.Run("should fail fast instead of blocking when intake is saturated", func(t *testing.T) {
		s := New(ledger.New(0))
		require.NoError(t, s.initMetrics())

		// started state with an intake queue nobody drains
		s.isStarted = true
		s.intakeCh = make(chan ledger.Transaction)

		err := s.Submit(t.Context(), validCreation("tx-1"))
		assert.ErrorIs(t, err, ErrIntakeSaturated)
	})
}

func TestService_Pipeline(t *testing.T) {
	t.Run("should mine submitted transactions into linked blocks", func(t *testing.T) {
		var (
			l        = ledger.New(1)
			archive  = &archiveMock{}
			notifier = &notifierMock{}
		)

		s := New(l,
			WithBatchSize(2),
			WithFlushInterval(20*time.Millisecond),
			WithBlockArchive(archive),
			WithMinedBlockNotifier(notifier),
		)
		t.Cleanup(s.Close)
		require.NoError(t, s.Start(t.Context()))

		require.NoError(t, s.Submit(t.Context(), validCreation("tx-1")))
		require.NoError(t, s.Submit(t.Context(), validTransfer("tx-2")))

		require.Eventually(t, func() bool {
			return len(l.TransactionHistory()) == 2
		}, 5*time.Second, 10*time.Millisecond)

		history := l.TransactionHistory()
		assert.Equal(t, "tx-1", history[0].ID)
		assert.Equal(t, "tx-2", history[1].ID)
		assert.True(t, l.Verify().Valid)

		require.Eventually(t, func() bool {
			return len(archive.savedBlocks()) == 2 && len(notifier.notified()) == 1
		}, 5*time.Second, 10*time.Millisecond)

		saved := archive.savedBlocks()
		assert.Equal(t, uint64(0), saved[0].Index) // seeded genesis
		assert.Equal(t, uint64(1), saved[1].Index)
		assert.Equal(t, uint64(1), notifier.notified()[0].Index)
	})

	t.Run("should drop invalid and duplicate submissions", func(t *testing.T) {
		l := ledger.New(1)
		s := New(l,
			WithBatchSize(2),
			WithFlushInterval(20*time.Millisecond),
		)
		t.Cleanup(s.Close)
		require.NoError(t, s.Start(t.Context()))

		require.NoError(t, s.Submit(t.Context(), validCreation("tx-1")))
		require.NoError(t, s.Submit(t.Context(), ledger.NewCreation("tx-bad", ledger.CreationPayload{})))
		require.NoError(t, s.Submit(t.Context(), validCreation("tx-1"))) // duplicate
		require.NoError(t, s.Submit(t.Context(), validTransfer("tx-2")))

		require.Eventually(t, func() bool {
			return len(l.TransactionHistory()) == 2
		}, 5*time.Second, 10*time.Millisecond)

		history := l.TransactionHistory()
		assert.Equal(t, "tx-1", history[0].ID)
		assert.Equal(t, "tx-2", history[1].ID)
	})

	t.Run("should preserve submission order across batches", func(t *testing.T) {
		l := ledger.New(1)
		s := New(l,
			WithBatchSize(2),
			WithFlushInterval(20*time.Millisecond),
		)
		t.Cleanup(s.Close)
		require.NoError(t, s.Start(t.Context()))

		ids := []string{"tx-1", "tx-2", "tx-3", "tx-4", "tx-5"}
		for _, id := range ids {
			require.NoError(t, s.Submit(t.Context(), validTransfer(id)))
		}

		require.Eventually(t, func() bool {
			return len(l.TransactionHistory()) == len(ids)
		}, 5*time.Second, 10*time.Millisecond)

		history := l.TransactionHistory()
		for i, id := range ids {
			assert.Equal(t, id, history[i].ID)
		}
		assert.True(t, l.Verify().Valid)
	})

	t.Run("should flush a partial batch on the flush interval", func(t *testing.T) {
		l := ledger.New(1)
		s := New(l,
			WithBatchSize(100),
			WithFlushInterval(20*time.Millisecond),
		)
		t.Cleanup(s.Close)
		require.NoError(t, s.Start(t.Context()))

		require.NoError(t, s.Submit(t.Context(), validCreation("tx-1")))

		require.Eventually(t, func() bool {
			return len(l.TransactionHistory()) == 1
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestService_Close(t *testing.T) {
	t.Run("should be safe to call without a prior start", func(t *testing.T) {
		s := New(ledger.New(0))
		s.Close()
	})

	t.Run("should stop both workers within the grace period", func(t *testing.T) {
		s := New(ledger.New(1), WithShutdownGracePeriod(3*time.Second))
		require.NoError(t, s.Start(t.Context()))

		done := make(chan struct{})
		go func() {
			defer close(done)
			s.Close()
		}()

		select {
		case <-done:
		case <-time.After(4 * time.Second):
			t.Fatal("close did not return in time")
		}
	})
}
