package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/letterpress/internal/store"
)

// fakeVendor is an in-memory Vendor for tests.
type fakeVendor struct {
	uploads   [][]byte
	uploadErr error
	createErr error
	nextJobID string
	status    map[string]*JobState
	outputs   map[string][]byte
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		nextJobID: "batch_1",
		status:    make(map[string]*JobState),
		outputs:   make(map[string][]byte),
	}
}

func (f *fakeVendor) UploadBundle(ctx context.Context, data []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, data)
	return fmt.Sprintf("file_%d", len(f.uploads)), nil
}

func (f *fakeVendor) CreateJob(ctx context.Context, inputFileID string) (*JobState, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	state := &JobState{ID: f.nextJobID, Status: "validating"}
	f.status[state.ID] = state
	return state, nil
}

func (f *fakeVendor) GetJobStatus(ctx context.Context, jobID string) (*JobState, error) {
	state, ok := f.status[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	return state, nil
}

func (f *fakeVendor) DownloadOutput(ctx context.Context, fileID string) ([]byte, error) {
	data, ok := f.outputs[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file %s", fileID)
	}
	return data, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedPages creates one document per date with one pending page each,
// backed by a real file on disk so bundle building can read it.
func seedPages(t *testing.T, s *store.Store, dates ...string) []int64 {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	var ids []int64
	for _, date := range dates {
		label := strings.ReplaceAll(date, "-", "")[2:]
		docID, err := s.CreateDocument(ctx, date, label)
		if err != nil {
			t.Fatalf("failed to create document: %v", err)
		}
		path := filepath.Join(dir, label+"-1.pdf")
		if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatalf("failed to write test pdf: %v", err)
		}
		pageID, err := s.CreatePage(ctx, docID, 1, path, 1)
		if err != nil {
			t.Fatalf("failed to create page: %v", err)
		}
		ids = append(ids, pageID)
	}
	return ids
}

// outputLineJSON builds one vendor output record.
func outputLineJSON(customID string, body map[string]any) string {
	rec := map[string]any{
		"custom_id": customID,
		"response":  map[string]any{"status_code": 200, "body": body},
	}
	b, _ := json.Marshal(rec)
	return string(b)
}

func TestCustomID(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id := CustomID(PurposeTranscribe, 42)
		if id != "transcribe-42" {
			t.Errorf("CustomID = %q", id)
		}
		purpose, unitID, err := ParseCustomID(id)
		if err != nil {
			t.Fatalf("ParseCustomID failed: %v", err)
		}
		if purpose != PurposeTranscribe || unitID != 42 {
			t.Errorf("got %q, %d", purpose, unitID)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, id := range []string{"", "nodash", "transcribe-", "-5", "mystery-3", "transcribe-abc", "42-transcribe"} {
			if _, _, err := ParseCustomID(id); err == nil {
				t.Errorf("ParseCustomID(%q) should fail", id)
			}
		}
	})
}

func TestSubmit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01", "1943-01-02")

	vendor := newFakeVendor()
	sub := NewSubmitter(SubmitterConfig{Store: s, Vendor: vendor, Model: "gpt-4o"})

	job, err := sub.Submit(ctx, store.KindTranscription, 10)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job == nil || job.ID != "batch_1" {
		t.Fatalf("job = %+v", job)
	}
	if len(job.UnitIDs) != 2 {
		t.Errorf("membership = %v", job.UnitIDs)
	}

	// Every submitted unit left the pending set atomically.
	pending, err := s.FetchPending(ctx, store.KindTranscription, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("%d units still pending after submit", len(pending))
	}
	for _, id := range ids {
		page, err := s.GetPage(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if page.Status != store.StatusSubmitted {
			t.Errorf("page %d status = %q, want submitted", id, page.Status)
		}
	}

	// The bundle is one JSONL line per unit targeting the responses
	// endpoint.
	if len(vendor.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(vendor.uploads))
	}
	lines := strings.Split(strings.TrimSpace(string(vendor.uploads[0])), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 bundle lines, got %d", len(lines))
	}
	var line bundleLine
	if err := json.Unmarshal([]byte(lines[0]), &line); err != nil {
		t.Fatalf("bundle line is not valid JSON: %v", err)
	}
	if line.CustomID != CustomID(PurposeTranscribe, ids[0]) {
		t.Errorf("custom_id = %q", line.CustomID)
	}
	if line.Method != "POST" || line.URL != ResponsesEndpoint {
		t.Errorf("line target = %s %s", line.Method, line.URL)
	}
	if len(line.Body) == 0 {
		t.Error("bundle line has no body")
	}

	// Round trip through the store preserves membership.
	stored, err := s.GetBatchJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.UnitIDs) != 2 || stored.Purpose != PurposeTranscribe {
		t.Errorf("stored job = %+v", stored)
	}
}

func TestSubmitNothingPending(t *testing.T) {
	s := openTestStore(t)
	sub := NewSubmitter(SubmitterConfig{Store: s, Vendor: newFakeVendor(), Model: "gpt-4o"})
	job, err := sub.Submit(context.Background(), store.KindTranscription, 10)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job, got %+v", job)
	}
}

func TestSubmitAllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01")

	// Job creation fails after the bundle was uploaded: no unit may
	// have changed status and no job row may exist.
	vendor := newFakeVendor()
	vendor.createErr = errors.New("vendor unavailable")
	sub := NewSubmitter(SubmitterConfig{Store: s, Vendor: vendor, Model: "gpt-4o"})

	if _, err := sub.Submit(ctx, store.KindTranscription, 10); err == nil {
		t.Fatal("expected submit to fail")
	}

	page, err := s.GetPage(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if page.Status != store.StatusPending {
		t.Errorf("status = %q, want pending after failed submission", page.Status)
	}
	jobs, err := s.ListBatchJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no job rows, got %d", len(jobs))
	}
}

func TestTrackerRefresh(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01")

	job := &store.BatchJob{ID: "batch_1", Purpose: PurposeTranscribe, Status: "validating", UnitIDs: ids}
	if err := s.CreateBatchJob(ctx, job, store.KindTranscription); err != nil {
		t.Fatal(err)
	}

	vendor := newFakeVendor()
	vendor.status["batch_1"] = &JobState{
		ID: "batch_1", Status: "completed",
		RequestCount: 1, CompletedCount: 1,
		OutputFileID: "file_out",
	}

	tracker := NewTracker(s, vendor, nil)
	refreshed, err := tracker.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(refreshed) != 1 {
		t.Fatalf("refreshed %d jobs, want 1", len(refreshed))
	}

	got, err := s.GetBatchJob(ctx, "batch_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" || got.OutputFileID != "file_out" || got.CompletedCount != 1 {
		t.Errorf("job = %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed job should record a completion timestamp")
	}

	// Terminal jobs are no longer polled.
	refreshed, err = tracker.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(refreshed) != 0 {
		t.Errorf("terminal job was refreshed again")
	}
}

func completeJob(t *testing.T, s *store.Store, id, outputFileID string, failed int) {
	t.Helper()
	err := s.UpdateBatchJob(context.Background(), id, store.BatchJobUpdate{
		Status:       "completed",
		FailedCount:  failed,
		OutputFileID: outputFileID,
		Completed:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReconcilerProcessCompleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01", "1943-01-02", "1943-01-03")

	job := &store.BatchJob{ID: "batch_1", Purpose: PurposeTranscribe, Status: "validating", UnitIDs: ids}
	if err := s.CreateBatchJob(ctx, job, store.KindTranscription); err != nil {
		t.Fatal(err)
	}
	completeJob(t, s, "batch_1", "file_out", 0)

	// One line per shape: direct output_text, structured output, and a
	// per-item vendor error.
	vendor := newFakeVendor()
	vendor.outputs["file_out"] = []byte(strings.Join([]string{
		outputLineJSON(CustomID(PurposeTranscribe, ids[0]), map[string]any{
			"model": "gpt-4o", "output_text": "direct text",
		}),
		outputLineJSON(CustomID(PurposeTranscribe, ids[1]), map[string]any{
			"model": "gpt-4o",
			"output": []map[string]any{{
				"type": "message",
				"content": []map[string]any{{"type": "output_text", "text": "direct text"}},
			}},
		}),
		fmt.Sprintf(`{"custom_id":%q,"error":{"code":"server_error","message":"item exploded"}}`,
			CustomID(PurposeTranscribe, ids[2])),
	}, "\n"))

	rec := NewReconciler(s, vendor, nil)
	report, err := rec.ProcessCompleted(ctx)
	if err != nil {
		t.Fatalf("ProcessCompleted failed: %v", err)
	}
	if report.Jobs != 1 || report.Completed != 2 || report.Failed != 1 || report.Errors != 0 {
		t.Errorf("report = %+v", report)
	}

	// Both response shapes yield the identical text.
	for _, id := range ids[:2] {
		page, err := s.GetPage(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if page.Status != store.StatusCompleted || page.Transcription != "direct text" {
			t.Errorf("page %d = %q (%s)", id, page.Transcription, page.Status)
		}
		if page.Meta == nil || page.Meta.BatchID != "batch_1" || page.Meta.Model != "gpt-4o" {
			t.Errorf("page %d meta = %+v", id, page.Meta)
		}
	}

	failed, err := s.GetPage(ctx, ids[2])
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != store.StatusFailed || failed.Meta == nil || !strings.Contains(failed.Meta.Error, "item exploded") {
		t.Errorf("failed page = %+v", failed)
	}

	got, err := s.GetBatchJob(ctx, "batch_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessedAt == nil || got.ProcessedNote != store.ProcessedNoteReconciled {
		t.Errorf("job should carry the processed marker, got %+v", got)
	}
}

func TestReconcilerAtMostOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01")

	job := &store.BatchJob{ID: "batch_1", Purpose: PurposeTranscribe, Status: "validating", UnitIDs: ids}
	if err := s.CreateBatchJob(ctx, job, store.KindTranscription); err != nil {
		t.Fatal(err)
	}
	completeJob(t, s, "batch_1", "file_out", 0)

	vendor := newFakeVendor()
	vendor.outputs["file_out"] = []byte(outputLineJSON(CustomID(PurposeTranscribe, ids[0]),
		map[string]any{"output_text": "first pass"}))

	rec := NewReconciler(s, vendor, nil)
	if _, err := rec.ProcessCompleted(ctx); err != nil {
		t.Fatal(err)
	}

	// Mutate the artifact; a second pass must not re-apply anything.
	vendor.outputs["file_out"] = []byte(outputLineJSON(CustomID(PurposeTranscribe, ids[0]),
		map[string]any{"output_text": "stale second pass"}))

	report, err := rec.ProcessCompleted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Jobs != 0 {
		t.Errorf("second pass processed %d jobs, want 0", report.Jobs)
	}

	page, err := s.GetPage(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if page.Transcription != "first pass" {
		t.Errorf("transcription = %q, marker failed to guard reprocessing", page.Transcription)
	}
}

func TestReconcilerMalformedCustomID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01", "1943-01-02")

	job := &store.BatchJob{ID: "batch_1", Purpose: PurposeTranscribe, Status: "validating", UnitIDs: ids}
	if err := s.CreateBatchJob(ctx, job, store.KindTranscription); err != nil {
		t.Fatal(err)
	}
	completeJob(t, s, "batch_1", "file_out", 0)

	vendor := newFakeVendor()
	vendor.outputs["file_out"] = []byte(strings.Join([]string{
		outputLineJSON("garbage-id-???", map[string]any{"output_text": "lost"}),
		outputLineJSON(CustomID(PurposeTranscribe, ids[1]), map[string]any{"output_text": "kept"}),
	}, "\n"))

	rec := NewReconciler(s, vendor, nil)
	report, err := rec.ProcessCompleted(ctx)
	if err != nil {
		t.Fatalf("a malformed id must not be fatal: %v", err)
	}
	if report.Errors != 1 || report.Completed != 1 {
		t.Errorf("report = %+v, want 1 error and 1 completed", report)
	}

	// The job still reaches its processed marker.
	got, err := s.GetBatchJob(ctx, "batch_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessedAt == nil {
		t.Error("job with skipped lines should still be marked processed")
	}
}

func TestReconcilerNoTextShape(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01")

	job := &store.BatchJob{ID: "batch_1", Purpose: PurposeTranscribe, Status: "validating", UnitIDs: ids}
	if err := s.CreateBatchJob(ctx, job, store.KindTranscription); err != nil {
		t.Fatal(err)
	}
	completeJob(t, s, "batch_1", "file_out", 0)

	vendor := newFakeVendor()
	vendor.outputs["file_out"] = []byte(outputLineJSON(CustomID(PurposeTranscribe, ids[0]),
		map[string]any{"status": "completed"}))

	rec := NewReconciler(s, vendor, nil)
	report, err := rec.ProcessCompleted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 {
		t.Errorf("report = %+v, want the textless unit failed", report)
	}

	page, err := s.GetPage(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if page.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", page.Status)
	}
}

func TestCleanupFailed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01", "1943-01-02")

	job := &store.BatchJob{ID: "batch_1", Purpose: PurposeTranscribe, Status: "validating", UnitIDs: ids}
	if err := s.CreateBatchJob(ctx, job, store.KindTranscription); err != nil {
		t.Fatal(err)
	}
	completeJob(t, s, "batch_1", "file_out", 1)

	sweeper := NewSweeper(s, nil)
	swept, err := sweeper.CleanupFailed(ctx)
	if err != nil {
		t.Fatalf("CleanupFailed failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	// Every member is back to pending.
	for _, id := range ids {
		page, err := s.GetPage(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if page.Status != store.StatusPending {
			t.Errorf("page %d status = %q, want pending", id, page.Status)
		}
	}

	got, err := s.GetBatchJob(ctx, "batch_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessedAt == nil || got.ProcessedNote != store.ProcessedNoteCleanedUp {
		t.Errorf("job = %+v, want cleaned_up marker", got)
	}

	// Second sweep is a no-op, and the reconciler skips the job too.
	swept, err = sweeper.CleanupFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if swept != 0 {
		t.Errorf("second sweep touched %d jobs", swept)
	}
	report, err := NewReconciler(s, newFakeVendor(), nil).ProcessCompleted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Jobs != 0 {
		t.Error("cleaned up job must be excluded from reconciliation")
	}
}

func TestCleanupSkipsHealthyJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seedPages(t, s, "1943-01-01")

	job := &store.BatchJob{ID: "batch_1", Purpose: PurposeTranscribe, Status: "validating", UnitIDs: ids}
	if err := s.CreateBatchJob(ctx, job, store.KindTranscription); err != nil {
		t.Fatal(err)
	}
	completeJob(t, s, "batch_1", "file_out", 0)

	swept, err := NewSweeper(s, nil).CleanupFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if swept != 0 {
		t.Errorf("job without failures was swept")
	}

	page, err := s.GetPage(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if page.Status != store.StatusSubmitted {
		t.Errorf("status = %q, sweep must not touch healthy jobs", page.Status)
	}
}
