package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
)

var batchJobColumns = []any{
	"id", "purpose", "status", "unit_ids", "submission_ref",
	"input_file_id", "output_file_id", "error_file_id",
	"request_count", "completed_count", "failed_count",
	"created_at", "completed_at", "processed_at", "processed_note",
}

// CreateBatchJob records a newly submitted bulk job and marks every
// member unit as submitted in the same transaction, so no unit is left
// pending while actually in flight externally.
func (s *Store) CreateBatchJob(ctx context.Context, job *BatchJob, kind Kind) error {
	if job.ID == "" {
		return fmt.Errorf("batch job id is required")
	}

	unitIDs, err := json.Marshal(job.UnitIDs)
	if err != nil {
		return fmt.Errorf("failed to serialize unit ids: %w", err)
	}

	query, args, err := s.q.Insert("batch_jobs").Rows(goqu.Record{
		"id":              job.ID,
		"purpose":         job.Purpose,
		"status":          job.Status,
		"unit_ids":        string(unitIDs),
		"submission_ref":  job.SubmissionRef,
		"input_file_id":   job.InputFileID,
		"request_count":   job.RequestCount,
		"completed_count": job.CompletedCount,
		"failed_count":    job.FailedCount,
		"created_at":      now(),
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to create batch job %s: %w", job.ID, err)
		}
		return s.setUnitStatusTx(ctx, tx, kind, job.UnitIDs, StatusSubmitted, false)
	})
}

// GetBatchJob returns a batch job by its external id.
func (s *Store) GetBatchJob(ctx context.Context, id string) (*BatchJob, error) {
	query, args, err := s.q.From("batch_jobs").Select(batchJobColumns...).
		Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	job, err := scanBatchJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch job: %w", err)
	}
	return job, nil
}

// ListBatchJobs returns all batch jobs, newest first.
func (s *Store) ListBatchJobs(ctx context.Context) ([]BatchJob, error) {
	return s.queryBatchJobs(ctx)
}

// ActiveBatchJobs returns jobs whose mirrored vendor status is not yet
// terminal; these are the jobs the tracker should refresh.
func (s *Store) ActiveBatchJobs(ctx context.Context) ([]BatchJob, error) {
	return s.queryBatchJobs(ctx,
		goqu.I("status").NotIn("completed", "failed", "expired", "cancelled"))
}

// UnprocessedCompleted returns completed jobs whose results have not yet
// been applied (processed marker still null).
func (s *Store) UnprocessedCompleted(ctx context.Context) ([]BatchJob, error) {
	return s.queryBatchJobs(ctx,
		goqu.I("status").Eq("completed"),
		goqu.I("processed_at").IsNull())
}

// FailedUnprocessed returns completed jobs that reported per-item
// failures and have not been processed; these are the recovery sweep's
// targets.
func (s *Store) FailedUnprocessed(ctx context.Context) ([]BatchJob, error) {
	return s.queryBatchJobs(ctx,
		goqu.I("status").Eq("completed"),
		goqu.I("failed_count").Gt(0),
		goqu.I("processed_at").IsNull())
}

func (s *Store) queryBatchJobs(ctx context.Context, where ...goqu.Expression) ([]BatchJob, error) {
	ds := s.q.From("batch_jobs").Select(batchJobColumns...).
		Order(goqu.I("created_at").Desc(), goqu.I("id").Desc())
	if len(where) > 0 {
		ds = ds.Where(where...)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch jobs: %w", err)
	}
	defer rows.Close()

	jobs := []BatchJob{}
	for rows.Next() {
		job, err := scanBatchJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// BatchJobUpdate carries the fields mirrored from a vendor status poll.
type BatchJobUpdate struct {
	Status         string
	RequestCount   int
	CompletedCount int
	FailedCount    int
	OutputFileID   string
	ErrorFileID    string
	Completed      bool // record a completion timestamp
}

// UpdateBatchJob overwrites a job's mirrored status and counts. It never
// touches unit rows.
func (s *Store) UpdateBatchJob(ctx context.Context, id string, upd BatchJobUpdate) error {
	rec := goqu.Record{
		"status":          upd.Status,
		"request_count":   upd.RequestCount,
		"completed_count": upd.CompletedCount,
		"failed_count":    upd.FailedCount,
		"output_file_id":  upd.OutputFileID,
		"error_file_id":   upd.ErrorFileID,
	}
	if upd.Completed {
		rec["completed_at"] = now()
	}

	query, args, err := s.q.Update("batch_jobs").Set(rec).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update batch job %s: %w", id, err)
	}
	return nil
}

// MarkBatchJobProcessed sets the processed marker. Once set, neither the
// reconciler nor the recovery sweep will touch the job again.
func (s *Store) MarkBatchJobProcessed(ctx context.Context, id, note string) error {
	query, args, err := s.q.Update("batch_jobs").Set(goqu.Record{
		"processed_at":   now(),
		"processed_note": note,
	}).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark batch job %s processed: %w", id, err)
	}
	return nil
}

func scanBatchJob(row rowScanner) (*BatchJob, error) {
	var j BatchJob
	var unitIDs, createdAt string
	var completedAt, processedAt sql.NullString
	if err := row.Scan(&j.ID, &j.Purpose, &j.Status, &unitIDs, &j.SubmissionRef,
		&j.InputFileID, &j.OutputFileID, &j.ErrorFileID,
		&j.RequestCount, &j.CompletedCount, &j.FailedCount,
		&createdAt, &completedAt, &processedAt, &j.ProcessedNote); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(unitIDs), &j.UnitIDs); err != nil {
		return nil, fmt.Errorf("failed to parse unit ids for job %s: %w", j.ID, err)
	}
	j.CreatedAt = parseTime(createdAt)
	j.CompletedAt = nullableTime(completedAt)
	j.ProcessedAt = nullableTime(processedAt)
	return &j, nil
}

func nullableTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	return &t
}
