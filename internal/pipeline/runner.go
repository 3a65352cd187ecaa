package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/letterpress/internal/providers"
	"github.com/jackzampolin/letterpress/internal/store"
)

// Config holds configuration for a Runner.
type Config struct {
	Store   *store.Store
	Invoker Invoker

	// BatchSize is how many pending units to fetch per pass.
	BatchSize int

	// UnitDelay is the pause between provider calls within one batch.
	// The last unit of a batch skips it.
	UnitDelay time.Duration

	// BatchDelay is the pause between batches.
	BatchDelay time.Duration

	// CallTimeout bounds a single provider call. A call that exceeds it
	// is classified retryable and the unit stays pending.
	CallTimeout time.Duration

	// MaxBatches stops the run after this many non-empty batches.
	// Zero means run until the pending set drains.
	MaxBatches int

	Logger *slog.Logger
}

// Counters are the cumulative tallies for one run.
type Counters struct {
	Processed int // units handed to the provider
	Completed int // results written
	Failed    int // permanent failures recorded
	Retried   int // retryable failures left pending
}

// Runner drains pending units of one kind through a provider, one unit
// at a time. At most one Run loop is active per Runner; concurrent
// Runners over the same pending set are not safe without a claim step.
type Runner struct {
	store       *store.Store
	invoker     Invoker
	batchSize   int
	unitDelay   time.Duration
	batchDelay  time.Duration
	callTimeout time.Duration
	maxBatches  int
	logger      *slog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	counters Counters
}

// NewRunner creates a runner with defaults filled in.
func NewRunner(cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		store:       cfg.Store,
		invoker:     cfg.Invoker,
		batchSize:   cfg.BatchSize,
		unitDelay:   cfg.UnitDelay,
		batchDelay:  cfg.BatchDelay,
		callTimeout: cfg.CallTimeout,
		maxBatches:  cfg.MaxBatches,
		logger:      cfg.Logger.With("component", "runner", "kind", cfg.Invoker.Kind()),
	}
}

// Run executes the drain loop until the pending set is empty, Stop is
// called, ctx is canceled, or a store error aborts the run. Calling Run
// while a run is already active returns immediately with no error.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.counters = Counters{}
	r.mu.Unlock()

	r.logger.Info("runner starting", "batch_size", r.batchSize)
	err := r.loop(ctx)

	r.mu.Lock()
	r.running = false
	c := r.counters
	r.mu.Unlock()

	// Cleanup runs on every exit path, including store failures.
	r.logger.Info("runner finished",
		"processed", c.Processed,
		"completed", c.Completed,
		"failed", c.Failed,
		"retried", c.Retried,
		"error", err)
	return err
}

// Stop asks the active run to exit. The loop observes the request at
// its next checkpoint; in-flight provider calls are not interrupted.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		select {
		case <-r.stopCh:
		default:
			close(r.stopCh)
		}
	}
}

// Running reports whether a Run loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Counters returns the cumulative tallies of the current or most recent
// run.
func (r *Runner) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

func (r *Runner) loop(ctx context.Context) error {
	batches := 0
	for {
		if r.stopped(ctx) {
			return ctx.Err()
		}

		units, err := r.store.FetchPending(ctx, r.invoker.Kind(), r.batchSize)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			r.logger.Info("no pending units, run complete")
			return nil
		}

		r.logger.Info("processing batch", "units", len(units))
		for i, unit := range units {
			if r.stopped(ctx) {
				return ctx.Err()
			}
			if err := r.processUnit(ctx, unit); err != nil {
				// Only store write failures surface here; they abort
				// the run because unit state can no longer be trusted.
				return err
			}
			if i < len(units)-1 {
				if err := r.sleep(ctx, r.unitDelay); err != nil {
					return err
				}
			}
		}

		batches++
		if r.maxBatches > 0 && batches >= r.maxBatches {
			r.logger.Info("batch limit reached", "batches", batches)
			return nil
		}
		if err := r.sleep(ctx, r.batchDelay); err != nil {
			return err
		}
	}
}

// processUnit invokes the provider for one unit and records the outcome.
// Provider failures never abort the loop; only store errors do.
func (r *Runner) processUnit(ctx context.Context, unit store.Unit) error {
	r.mu.Lock()
	r.counters.Processed++
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	outcome, err := r.invoker.Invoke(callCtx, unit)
	cancel()

	if err != nil {
		if providers.Retryable(err) {
			// Leave the unit pending; the next pass picks it up again.
			r.mu.Lock()
			r.counters.Retried++
			r.mu.Unlock()
			r.logger.Warn("retryable failure, unit stays pending",
				"unit_id", unit.ID,
				"document", unit.DocumentDate,
				"error", err)
			return nil
		}

		r.mu.Lock()
		r.counters.Failed++
		r.mu.Unlock()
		r.logger.Error("permanent failure",
			"unit_id", unit.ID,
			"document", unit.DocumentDate,
			"error", err)

		meta := &store.ResultMeta{
			Provider: providerName(r.invoker),
			Error:    err.Error(),
		}
		return r.store.WriteResult(ctx, unit.Kind, unit.ID, store.StatusFailed, "", meta)
	}

	r.mu.Lock()
	r.counters.Completed++
	r.mu.Unlock()
	r.logger.Info("unit completed",
		"unit_id", unit.ID,
		"document", unit.DocumentDate,
		"part", unit.PartIndex,
		"provider", outcome.Provider,
		"duration", outcome.ExecutionTime)
	return r.store.WriteResult(ctx, unit.Kind, unit.ID, store.StatusCompleted, outcome.Text, metaFor(outcome))
}

// stopped reports whether the loop should exit at this checkpoint.
func (r *Runner) stopped(ctx context.Context) bool {
	select {
	case <-r.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep pauses for d unless the run is stopped first.
func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-r.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func providerName(inv Invoker) string {
	switch v := inv.(type) {
	case *TranscribeInvoker:
		return v.Provider.Name()
	case *SummarizeInvoker:
		return v.Provider.Name()
	}
	return ""
}
