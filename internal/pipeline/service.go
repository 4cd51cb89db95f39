// Package pipeline moves submitted supply-chain transactions from intake to
// a mined, linked block without losing, duplicating, or reordering them. It
// runs two supervised workers: a processor that validates submissions and a
// miner that batches survivors and drives the ledger's mine-and-append
// sequence. The two queues between them decouple validation throughput from
// CPU-bound mining throughput.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pkg/logger"
	"github.com/gabapcia/supplyledger/internal/pkg/resilience/retry"
	"github.com/gabapcia/supplyledger/internal/pkg/x/chflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
var ErrServiceAlreadyStarted = errors.New("service already started")

// ErrServiceNotStarted is returned by Submit before Start or after Close.
var ErrServiceNotStarted = errors.New("service not started")

// ErrIntakeSaturated is returned by Submit when the intake queue is full.
// Submission never blocks the caller; under sustained overload the caller
// decides whether to retry or shed the transaction.
var ErrIntakeSaturated = errors.New("intake queue is saturated")

const (
	defaultBatchSize           = 8
	defaultFlushInterval       = 2 * time.Second
	defaultIntakeBufferSize    = 256
	defaultMiningBufferSize    = 256
	defaultShutdownGracePeriod = 5 * time.Second
)

// Service is the pipeline coordinator: it owns the worker lifecycles and the
// intake and mining queues.
type Service interface {
	// Start rehydrates the ledger from the configured archive (if any) and
	// launches the processor and miner workers. It returns
	// ErrServiceAlreadyStarted if called more than once.
	Start(ctx context.Context) error

	// Submit enqueues a transaction into intake without blocking. The
	// submission is fire-and-forget: validation happens later in the
	// processor worker and failures are logged, not reported back.
	Submit(ctx context.Context, tx ledger.Transaction) error

	// Close requests both workers to stop and joins them with a bounded
	// grace period. Workers that fail to stop in time are logged, not
	// treated as fatal. It is safe to call Close even if the service was
	// never started.
	Close()
}

// closeFunc cancels the worker context and joins the background goroutines.
type closeFunc func()

// service is the internal implementation of the pipeline Service interface.
type service struct {
	mu        sync.Mutex // protects lifecycle state
	isStarted bool
	closeFunc closeFunc

	ledger   *ledger.Ledger
	archive  BlockArchive
	notifier MinedBlockNotifier
	retry    retry.Retry

	batchSize           int
	flushInterval       time.Duration
	intakeBufferSize    int
	miningBufferSize    int
	shutdownGracePeriod time.Duration

	intakeCh chan ledger.Transaction // nil unless started

	tracer            trace.Tracer
	submittedCounter  metric.Int64Counter
	rejectedCounter   metric.Int64Counter
	minedBlockCounter metric.Int64Counter
}

var _ Service = (*service)(nil)

// Start initializes the pipeline: the ledger is rehydrated from the archive,
// the intake and mining queues are allocated, and both workers are launched.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	if err := s.initMetrics(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	if err := s.rehydrate(ctx); err != nil {
		cancel()
		return err
	}

	var (
		wg       sync.WaitGroup
		intakeCh = make(chan ledger.Transaction, s.intakeBufferSize)
		miningCh = make(chan ledger.Transaction, s.miningBufferSize)
	)

	s.startProcessor(ctx, &wg, intakeCh, miningCh)
	s.startMiner(ctx, &wg, miningCh)

	s.intakeCh = intakeCh
	s.closeFunc = func() {
		cancel()
		if !waitWithTimeout(&wg, s.shutdownGracePeriod) {
			logger.Warn(context.Background(), "pipeline workers did not stop within the grace period",
				"grace_period", s.shutdownGracePeriod,
			)
		}
	}
	s.isStarted = true
	return nil
}

// Submit enqueues a transaction into the intake queue without blocking.
func (s *service) Submit(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	started, intakeCh := s.isStarted, s.intakeCh
	s.mu.Unlock()

	if !started {
		return ErrServiceNotStarted
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if !chflow.TrySend(ctx, intakeCh, tx) {
		return ErrIntakeSaturated
	}

	s.submittedCounter.Add(ctx, 1)
	return nil
}

// Close shuts down both workers with the configured grace period.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}

	s.closeFunc = nil
	s.intakeCh = nil
	s.isStarted = false
}

// initMetrics registers the pipeline's OTEL instruments. It is a no-op after
// the first successful registration.
func (s *service) initMetrics() error {
	if s.submittedCounter != nil {
		return nil
	}

	meter := otel.Meter("supplyledger/pipeline")

	submitted, err := meter.Int64Counter("ledger.transactions.submitted")
	if err != nil {
		return err
	}

	rejected, err := meter.Int64Counter("ledger.transactions.rejected")
	if err != nil {
		return err
	}

	mined, err := meter.Int64Counter("ledger.blocks.mined")
	if err != nil {
		return err
	}

	s.submittedCounter = submitted
	s.rejectedCounter = rejected
	s.minedBlockCounter = mined
	return nil
}

// waitWithTimeout waits for the WaitGroup up to the given duration and
// reports whether every worker finished in time.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// config holds the pipeline's tunables before construction.
type config struct {
	archive             BlockArchive
	notifier            MinedBlockNotifier
	retry               retry.Retry
	batchSize           int
	flushInterval       time.Duration
	intakeBufferSize    int
	miningBufferSize    int
	shutdownGracePeriod time.Duration
}

// Option configures the pipeline service.
type Option func(*config)

// New creates a pipeline coordinator over the given ledger. By default it
// keeps no durable archive, notifies nobody, mines batches of eight, and
// flushes stragglers every two seconds.
func New(l *ledger.Ledger, opts ...Option) *service {
	cfg := config{
		archive:             nopArchive{},
		notifier:            nil,
		retry:               retry.New(),
		batchSize:           defaultBatchSize,
		flushInterval:       defaultFlushInterval,
		intakeBufferSize:    defaultIntakeBufferSize,
		miningBufferSize:    defaultMiningBufferSize,
		shutdownGracePeriod: defaultShutdownGracePeriod,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		ledger:              l,
		archive:             cfg.archive,
		notifier:            cfg.notifier,
		retry:               cfg.retry,
		batchSize:           cfg.batchSize,
		flushInterval:       cfg.flushInterval,
		intakeBufferSize:    cfg.intakeBufferSize,
		miningBufferSize:    cfg.miningBufferSize,
		shutdownGracePeriod: cfg.shutdownGracePeriod,
		tracer:              otel.Tracer("supplyledger/pipeline"),
	}
}

// WithBlockArchive sets the durable archive every mined block is written to
// and the chain is rehydrated from on Start.
func WithBlockArchive(a BlockArchive) Option {
	return func(c *config) {
		c.archive = a
	}
}

// WithMinedBlockNotifier sets the notifier invoked after each mined block.
func WithMinedBlockNotifier(n MinedBlockNotifier) Option {
	return func(c *config) {
		c.notifier = n
	}
}

// WithRetry sets the retry policy used for archive writes.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}

// WithBatchSize sets how many transactions the miner gathers before mining a
// block.
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithFlushInterval sets how long the miner waits before mining a partial
// batch, so stragglers are not held back indefinitely.
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) {
		c.flushInterval = d
	}
}

// WithIntakeBufferSize sets the capacity of the intake queue.
func WithIntakeBufferSize(n int) Option {
	return func(c *config) {
		c.intakeBufferSize = n
	}
}

// WithMiningBufferSize sets the capacity of the mining queue.
func WithMiningBufferSize(n int) Option {
	return func(c *config) {
		c.miningBufferSize = n
	}
}

// WithShutdownGracePeriod sets how long Close waits for the workers to stop
// before giving up on them.
func WithShutdownGracePeriod(d time.Duration) Option {
	return func(c *config) {
		c.shutdownGracePeriod = d
	}
}
