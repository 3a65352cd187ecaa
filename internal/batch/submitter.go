package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jackzampolin/letterpress/internal/providers"
	"github.com/jackzampolin/letterpress/internal/store"
)

// bundleLine is one request record of the uploaded JSONL bundle.
type bundleLine struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

// SubmitterConfig holds configuration for a Submitter.
type SubmitterConfig struct {
	Store  *store.Store
	Vendor Vendor

	// Model and prompts used for every bundled request.
	Model            string
	TranscribePrompt string
	SummarizePrompt  string

	Logger *slog.Logger
}

// Submitter packages pending units into one bundle and creates an
// external batch job over it. Submission is all-or-nothing: if any step
// fails, no job row is written and no unit changes status.
type Submitter struct {
	store            *store.Store
	vendor           Vendor
	model            string
	transcribePrompt string
	summarizePrompt  string
	logger           *slog.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Submitter{
		store:            cfg.Store,
		vendor:           cfg.Vendor,
		model:            cfg.Model,
		transcribePrompt: cfg.TranscribePrompt,
		summarizePrompt:  cfg.SummarizePrompt,
		logger:           cfg.Logger.With("component", "submitter"),
	}
}

// Submit fetches up to limit pending units of kind, bundles them, and
// creates one external batch job. It returns nil with no error when
// there is nothing pending. On success every bundled unit is marked
// submitted in the same transaction that records the job.
func (s *Submitter) Submit(ctx context.Context, kind store.Kind, limit int) (*store.BatchJob, error) {
	units, err := s.store.FetchPending(ctx, kind, limit)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		s.logger.Info("no pending units to submit", "kind", kind)
		return nil, nil
	}

	purpose := PurposeFor(kind)
	var buf bytes.Buffer
	unitIDs := make([]int64, 0, len(units))
	enc := json.NewEncoder(&buf)
	for _, unit := range units {
		body, err := s.buildBody(ctx, unit)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for unit %d: %w", unit.ID, err)
		}
		line := bundleLine{
			CustomID: CustomID(purpose, unit.ID),
			Method:   "POST",
			URL:      ResponsesEndpoint,
			Body:     body,
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("failed to encode bundle line: %w", err)
		}
		unitIDs = append(unitIDs, unit.ID)
	}

	inputFileID, err := s.vendor.UploadBundle(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}
	s.logger.Info("bundle uploaded", "units", len(unitIDs), "input_file_id", inputFileID)

	state, err := s.vendor.CreateJob(ctx, inputFileID)
	if err != nil {
		return nil, err
	}

	job := &store.BatchJob{
		ID:             state.ID,
		Purpose:        purpose,
		Status:         state.Status,
		UnitIDs:        unitIDs,
		SubmissionRef:  uuid.New().String(),
		InputFileID:    inputFileID,
		RequestCount:   len(unitIDs),
		CompletedCount: state.CompletedCount,
		FailedCount:    state.FailedCount,
	}
	if err := s.store.CreateBatchJob(ctx, job, kind); err != nil {
		return nil, fmt.Errorf("failed to record batch job %s: %w", state.ID, err)
	}

	s.logger.Info("batch job created",
		"job_id", job.ID,
		"purpose", purpose,
		"units", len(unitIDs),
		"status", job.Status)
	return job, nil
}

func (s *Submitter) buildBody(ctx context.Context, unit store.Unit) (json.RawMessage, error) {
	switch unit.Kind {
	case store.KindSummarization:
		text, err := s.store.CombinedTranscription(ctx, unit.DocumentID)
		if err != nil {
			return nil, err
		}
		return providers.BuildSummarizeBody(s.model, s.summarizePrompt, text)
	default:
		return providers.BuildTranscribeBody(s.model, s.transcribePrompt, unit.SourcePath)
	}
}
