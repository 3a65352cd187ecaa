package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/letterpress/internal/store"
)

// Sweeper is the failure recovery sweep: completed jobs that report any
// failures and have not been processed get every member unit reset to
// pending, then are marked processed so neither the Reconciler nor a
// later sweep touches them again. Jobs with failures are replayed in
// full rather than picked apart line by line; redundant recomputation
// is accepted for the simpler recovery story.
type Sweeper struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(s *store.Store, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: s, logger: logger.With("component", "sweeper")}
}

// CleanupFailed resets the membership of every completed, unprocessed
// batch job with a non-zero failure count. It returns the number of
// jobs swept.
func (w *Sweeper) CleanupFailed(ctx context.Context) (int, error) {
	jobs, err := w.store.FailedUnprocessed(ctx)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, job := range jobs {
		kind, err := KindFor(job.Purpose)
		if err != nil {
			return swept, err
		}
		if err := w.store.ResetUnits(ctx, kind, job.UnitIDs); err != nil {
			return swept, fmt.Errorf("failed to reset units for job %s: %w", job.ID, err)
		}
		if err := w.store.MarkBatchJobProcessed(ctx, job.ID, store.ProcessedNoteCleanedUp); err != nil {
			return swept, err
		}
		w.logger.Info("batch job cleaned up",
			"job_id", job.ID,
			"purpose", job.Purpose,
			"units_reset", len(job.UnitIDs),
			"failed_count", job.FailedCount)
		swept++
	}
	return swept, nil
}
