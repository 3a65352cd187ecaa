package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/letterpress/internal/providers"
	"github.com/jackzampolin/letterpress/internal/store"
)

// outputLine is one record of a vendor batch output artifact.
type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Report tallies one reconciliation pass.
type Report struct {
	Jobs      int // jobs processed this pass
	Completed int // units marked completed
	Failed    int // units marked failed
	Errors    int // lines skipped (unparseable id or record)
}

// Reconciler applies completed batch job outputs back to unit rows,
// at most once per job. The processed marker is the sole idempotence
// guard and is always the last write for a job, so a crash mid-job
// replays the whole job next pass; re-applying a successful result is
// a safe overwrite.
type Reconciler struct {
	store  *store.Store
	vendor Vendor
	logger *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(s *store.Store, v Vendor, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: s, vendor: v, logger: logger.With("component", "reconciler")}
}

// ProcessCompleted reconciles every completed batch job whose processed
// marker is still unset.
func (r *Reconciler) ProcessCompleted(ctx context.Context) (*Report, error) {
	jobs, err := r.store.UnprocessedCompleted(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for i := range jobs {
		if err := r.processJob(ctx, &jobs[i], report); err != nil {
			// Leave the marker unset so the job is retried next pass.
			return report, fmt.Errorf("failed to process batch job %s: %w", jobs[i].ID, err)
		}
		report.Jobs++
	}
	return report, nil
}

func (r *Reconciler) processJob(ctx context.Context, job *store.BatchJob, report *Report) error {
	kind, err := KindFor(job.Purpose)
	if err != nil {
		return err
	}

	var data []byte
	if job.OutputFileID != "" {
		data, err = r.vendor.DownloadOutput(ctx, job.OutputFileID)
		if err != nil {
			return err
		}
	} else {
		r.logger.Warn("completed batch job has no output artifact", "job_id", job.ID)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := r.applyLine(ctx, job, kind, line, report); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan output: %w", err)
	}

	// The marker is set even when lines were skipped; per-unit failures
	// are recovered by the sweep, never by reprocessing the job.
	if err := r.store.MarkBatchJobProcessed(ctx, job.ID, store.ProcessedNoteReconciled); err != nil {
		return err
	}
	r.logger.Info("batch job reconciled", "job_id", job.ID, "purpose", job.Purpose)
	return nil
}

// applyLine applies one output record to its unit. Line-level problems
// are counted and skipped; a store write failure is fatal and leaves
// the job marker unset so the whole job is retried next pass.
func (r *Reconciler) applyLine(ctx context.Context, job *store.BatchJob, kind store.Kind, line []byte, report *Report) error {
	var rec outputLine
	if err := json.Unmarshal(line, &rec); err != nil {
		report.Errors++
		r.logger.Warn("skipping unparseable output line", "job_id", job.ID, "error", err)
		return nil
	}

	purpose, unitID, err := ParseCustomID(rec.CustomID)
	if err != nil {
		report.Errors++
		r.logger.Warn("skipping line with malformed custom id", "job_id", job.ID, "custom_id", rec.CustomID)
		return nil
	}
	if purpose != job.Purpose {
		report.Errors++
		r.logger.Warn("skipping line with mismatched purpose", "job_id", job.ID, "custom_id", rec.CustomID)
		return nil
	}

	meta := &store.ResultMeta{
		Provider:    "openai",
		BatchID:     job.ID,
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if rec.Error != nil {
		meta.Error = rec.Error.Message
		return r.writeUnit(ctx, kind, unitID, store.StatusFailed, "", meta, report)
	}
	if rec.Response == nil || rec.Response.StatusCode != 200 {
		status := 0
		if rec.Response != nil {
			status = rec.Response.StatusCode
		}
		meta.Error = fmt.Sprintf("request failed with status %d", status)
		return r.writeUnit(ctx, kind, unitID, store.StatusFailed, "", meta, report)
	}

	var body providers.ResponseBody
	if err := json.Unmarshal(rec.Response.Body, &body); err != nil {
		meta.Error = fmt.Sprintf("unparseable response body: %v", err)
		return r.writeUnit(ctx, kind, unitID, store.StatusFailed, "", meta, report)
	}

	text, ok := body.Text()
	if !ok {
		meta.Error = "no text in response"
		if body.Error != nil {
			meta.Error = body.Error.Message
		}
		return r.writeUnit(ctx, kind, unitID, store.StatusFailed, "", meta, report)
	}

	meta.Model = body.Model
	return r.writeUnit(ctx, kind, unitID, store.StatusCompleted, text, meta, report)
}

func (r *Reconciler) writeUnit(ctx context.Context, kind store.Kind, unitID int64, status store.Status, text string, meta *store.ResultMeta, report *Report) error {
	if err := r.store.WriteResult(ctx, kind, unitID, status, text, meta); err != nil {
		return fmt.Errorf("failed to write unit %d: %w", unitID, err)
	}
	if status == store.StatusCompleted {
		report.Completed++
	} else {
		report.Failed++
	}
	return nil
}
