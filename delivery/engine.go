package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EngineStore is the interface the engine needs to schedule deliveries.
type EngineStore interface {
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)
}

// Releaser is implemented by stores whose Dequeue claims deliveries
// destructively. When the executor skips a claimed delivery without touching
// its record, the engine calls Release so the delivery becomes due again on
// a later poll.
type Releaser interface {
	Release(ctx context.Context, d *Delivery) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int
}

// Engine is the delivery scheduler: a poll loop that dequeues due deliveries
// and hands each one to the executor on a bounded worker pool. Deliveries the
// executor skipped (open circuit, rate limit) stay due and are re-presented
// on a later poll.
type Engine struct {
	store    EngineStore
	executor *Executor
	config   EngineConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine around an executor.
func NewEngine(store EngineStore, executor *Executor, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Engine{
		store:    store,
		executor: executor,
		config:   cfg,
		logger:   logger,
	}
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight deliveries to complete,
// or until ctx expires. In-flight attempts are not aborted by the
// cancellation; they finish on their own request timeouts.
func (e *Engine) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("shutdown deadline reached with deliveries in flight")
	}
}

// release hands a skipped delivery back to the store so the next poll can
// pick it up again.
func (e *Engine) release(ctx context.Context, d *Delivery) {
	r, ok := e.store.(Releaser)
	if !ok {
		return
	}
	if err := r.Release(ctx, d); err != nil {
		e.logger.ErrorContext(ctx, "release skipped delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}

// pollLoop periodically dequeues due deliveries and dispatches them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	// Dispatched attempts and claim releases run on a context that survives
	// Stop's cancellation: a started delivery runs to completion (bounded by
	// the executor's request timeout), and handing claims back must not fail
	// just because shutdown began.
	workCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for i, d := range batch {
				select {
				case <-ctx.Done():
					// Shutdown mid-batch: the rest of the batch is claimed
					// but will never be dispatched, so hand those claims
					// back before returning.
					for _, rest := range batch[i:] {
						e.release(workCtx, rest)
					}
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(del *Delivery) {
					defer e.wg.Done()
					defer func() { <-sem }()
					if !e.executor.Deliver(workCtx, del) {
						e.release(workCtx, del)
					}
				}(d)
			}
		}
	}
}
