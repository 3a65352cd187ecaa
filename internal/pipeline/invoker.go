// Package pipeline contains the synchronous runner: it drains pending
// units in small batches, calling the configured provider once per unit
// with pacing delays between calls. The bulk path in internal/batch is
// the high-throughput alternative; both write through the same store so
// their results are indistinguishable.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/letterpress/internal/providers"
	"github.com/jackzampolin/letterpress/internal/store"
)

// Invoker turns one pending unit into a provider call. It never touches
// unit status itself; the runner owns all status writes.
type Invoker interface {
	Kind() store.Kind
	Invoke(ctx context.Context, unit store.Unit) (*providers.Outcome, error)
}

// TranscribeInvoker sends a unit's source PDF to a Transcriber.
type TranscribeInvoker struct {
	Provider providers.Transcriber
}

func (i *TranscribeInvoker) Kind() store.Kind { return store.KindTranscription }

func (i *TranscribeInvoker) Invoke(ctx context.Context, unit store.Unit) (*providers.Outcome, error) {
	return i.Provider.Transcribe(ctx, unit.SourcePath)
}

// SummarizeInvoker combines a document's page transcriptions and sends
// the result to a Summarizer. The combine step fails if any page is not
// yet completed, which the runner treats as a permanent failure for
// this pass; the unit becomes eligible again once its pages finish
// because the summary status is reset by the retry tooling, and freshly
// ingested documents only enter the pending summary set once their
// transcription aggregate is completed.
type SummarizeInvoker struct {
	Store    *store.Store
	Provider providers.Summarizer
}

func (i *SummarizeInvoker) Kind() store.Kind { return store.KindSummarization }

func (i *SummarizeInvoker) Invoke(ctx context.Context, unit store.Unit) (*providers.Outcome, error) {
	text, err := i.Store.CombinedTranscription(ctx, unit.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to combine transcriptions for document %d: %w", unit.DocumentID, err)
	}
	return i.Provider.Summarize(ctx, text)
}

// metaFor builds the result metadata recorded alongside a unit write.
func metaFor(outcome *providers.Outcome) *store.ResultMeta {
	return &store.ResultMeta{
		Provider:    outcome.Provider,
		Model:       outcome.Model,
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
