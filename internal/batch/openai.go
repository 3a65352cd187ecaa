package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ResponsesEndpoint is the relative endpoint every bundled request
// targets; it matches the synchronous client's API.
const ResponsesEndpoint = "/v1/responses"

// OpenAIVendorConfig holds configuration for the OpenAI bulk vendor.
type OpenAIVendorConfig struct {
	APIKey     string
	BaseURL    string // optional (tests)
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client // optional (tests)
}

// OpenAIVendor implements Vendor on the official OpenAI SDK's Files and
// Batches APIs.
type OpenAIVendor struct {
	client openai.Client
}

// NewOpenAIVendor creates a bulk vendor client.
func NewOpenAIVendor(cfg OpenAIVendorConfig) *OpenAIVendor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVendor{client: openai.NewClient(opts...)}
}

// UploadBundle uploads the JSONL bundle as a batch-purpose file.
func (v *OpenAIVendor) UploadBundle(ctx context.Context, data []byte) (string, error) {
	file, err := v.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(data), "bundle.jsonl", "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload bundle: %w", err)
	}
	return file.ID, nil
}

// CreateJob creates a batch job over the uploaded bundle with the
// standard 24h completion window.
func (v *OpenAIVendor) CreateJob(ctx context.Context, inputFileID string) (*JobState, error) {
	job, err := v.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      inputFileID,
		Endpoint:         openai.BatchNewParamsEndpoint(ResponsesEndpoint),
		CompletionWindow: openai.BatchNewParamsCompletionWindow("24h"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}
	return jobState(job), nil
}

// GetJobStatus fetches the vendor's current view of a batch job.
func (v *OpenAIVendor) GetJobStatus(ctx context.Context, jobID string) (*JobState, error) {
	job, err := v.client.Batches.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch job %s: %w", jobID, err)
	}
	return jobState(job), nil
}

// DownloadOutput fetches the content of a result artifact.
func (v *OpenAIVendor) DownloadOutput(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := v.client.Files.Content(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return data, nil
}

func jobState(job *openai.Batch) *JobState {
	return &JobState{
		ID:             job.ID,
		Status:         string(job.Status),
		RequestCount:   int(job.RequestCounts.Total),
		CompletedCount: int(job.RequestCounts.Completed),
		FailedCount:    int(job.RequestCounts.Failed),
		OutputFileID:   job.OutputFileID,
		ErrorFileID:    job.ErrorFileID,
	}
}

var _ Vendor = (*OpenAIVendor)(nil)
