// Package providers abstracts the external AI capabilities the pipeline
// consumes: transcribing one scanned letter page and summarizing one
// document. Vendor-specific wire formats and error classification live
// entirely inside each provider; the runner only ever sees an Outcome or
// a classified Failure.
package providers

import (
	"context"
	"time"
)

// Transcriber extracts text from a single scanned PDF file.
type Transcriber interface {
	// Name returns the provider identifier (e.g. "openai", "gemini").
	Name() string

	// Transcribe extracts the handwritten/typed text from the PDF at
	// path. Failures are returned as a *Failure with retryability
	// classified by the provider.
	Transcribe(ctx context.Context, path string) (*Outcome, error)
}

// Summarizer produces a prose summary of a document's combined
// transcription text.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, text string) (*Outcome, error)
}

// Outcome is a successful capability invocation.
type Outcome struct {
	// Text is the produced transcription or summary.
	Text string

	// Provider and Model identify which backend produced the text.
	Provider string
	Model    string

	// RequestID tracks the invocation in logs.
	RequestID string

	// ExecutionTime is the wall-clock duration of the call.
	ExecutionTime time.Duration
}
