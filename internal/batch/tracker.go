package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/letterpress/internal/store"
)

// Tracker mirrors vendor-reported batch job status into the store. It
// never touches unit rows; only the Reconciler and the recovery sweep
// do that.
type Tracker struct {
	store  *store.Store
	vendor Vendor
	logger *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(s *store.Store, v Vendor, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: s, vendor: v, logger: logger.With("component", "tracker")}
}

// Refresh polls the vendor for every non-terminal tracked job, or for
// the explicit subset when jobIDs is non-empty, and overwrites the
// stored status and counts. Safe to call repeatedly.
func (t *Tracker) Refresh(ctx context.Context, jobIDs ...string) ([]store.BatchJob, error) {
	jobs, err := t.selectJobs(ctx, jobIDs)
	if err != nil {
		return nil, err
	}

	var refreshed []store.BatchJob
	for _, job := range jobs {
		state, err := t.vendor.GetJobStatus(ctx, job.ID)
		if err != nil {
			// One unreachable job must not block refreshing the rest.
			t.logger.Warn("failed to refresh batch job", "job_id", job.ID, "error", err)
			continue
		}

		upd := store.BatchJobUpdate{
			Status:         state.Status,
			RequestCount:   state.RequestCount,
			CompletedCount: state.CompletedCount,
			FailedCount:    state.FailedCount,
		}
		if state.Status == "completed" {
			upd.OutputFileID = state.OutputFileID
			upd.ErrorFileID = state.ErrorFileID
			upd.Completed = true
		}
		if err := t.store.UpdateBatchJob(ctx, job.ID, upd); err != nil {
			return nil, fmt.Errorf("failed to update batch job %s: %w", job.ID, err)
		}

		t.logger.Info("batch job refreshed",
			"job_id", job.ID,
			"status", state.Status,
			"completed", state.CompletedCount,
			"failed", state.FailedCount)

		job.Status = state.Status
		job.RequestCount = state.RequestCount
		job.CompletedCount = state.CompletedCount
		job.FailedCount = state.FailedCount
		job.OutputFileID = state.OutputFileID
		job.ErrorFileID = state.ErrorFileID
		refreshed = append(refreshed, job)
	}
	return refreshed, nil
}

func (t *Tracker) selectJobs(ctx context.Context, jobIDs []string) ([]store.BatchJob, error) {
	if len(jobIDs) == 0 {
		return t.store.ActiveBatchJobs(ctx)
	}
	var jobs []store.BatchJob
	for _, id := range jobIDs {
		job, err := t.store.GetBatchJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}
