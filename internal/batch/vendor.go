// Package batch implements the asynchronous bulk path: many pending
// units are packaged into one uploaded bundle and submitted as a single
// external batch job, then tracked, reconciled, and swept for failures.
// It writes through the same store as the synchronous runner, so a unit
// finished by either path looks the same.
package batch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackzampolin/letterpress/internal/store"
)

// Vendor abstracts the external bulk batch service. Implementations
// must be stateless; all durable state lives in the store.
type Vendor interface {
	// UploadBundle uploads a JSONL request bundle and returns the
	// vendor's file handle.
	UploadBundle(ctx context.Context, data []byte) (string, error)

	// CreateJob creates a batch job over a previously uploaded bundle.
	CreateJob(ctx context.Context, inputFileID string) (*JobState, error)

	// GetJobStatus fetches the vendor's current view of a job.
	GetJobStatus(ctx context.Context, jobID string) (*JobState, error)

	// DownloadOutput fetches a newline-delimited result artifact.
	DownloadOutput(ctx context.Context, fileID string) ([]byte, error)
}

// JobState is the vendor-reported state of one batch job.
type JobState struct {
	ID             string
	Status         string
	RequestCount   int
	CompletedCount int
	FailedCount    int
	OutputFileID   string
	ErrorFileID    string
}

// Purposes encoded into custom ids, one per unit kind.
const (
	PurposeTranscribe = "transcribe"
	PurposeSummarize  = "summarize"
)

// PurposeFor maps a unit kind to its custom-id purpose token.
func PurposeFor(kind store.Kind) string {
	if kind == store.KindSummarization {
		return PurposeSummarize
	}
	return PurposeTranscribe
}

// KindFor maps a purpose token back to its unit kind.
func KindFor(purpose string) (store.Kind, error) {
	switch purpose {
	case PurposeTranscribe:
		return store.KindTranscription, nil
	case PurposeSummarize:
		return store.KindSummarization, nil
	}
	return "", fmt.Errorf("unknown purpose: %s", purpose)
}

// CustomID encodes a unit identity into a batch line id.
func CustomID(purpose string, unitID int64) string {
	return fmt.Sprintf("%s-%d", purpose, unitID)
}

// ParseCustomID decodes a batch line id back to a unit identity.
func ParseCustomID(id string) (purpose string, unitID int64, err error) {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("malformed custom id: %q", id)
	}
	purpose = id[:idx]
	if _, err := KindFor(purpose); err != nil {
		return "", 0, fmt.Errorf("malformed custom id: %q", id)
	}
	unitID, err = strconv.ParseInt(id[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed custom id: %q", id)
	}
	return purpose, unitID, nil
}
