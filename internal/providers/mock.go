package providers

import (
	"context"
	"sync"
	"time"
)

// MockTranscriber is a configurable Transcriber for tests.
type MockTranscriber struct {
	mu sync.Mutex

	// TranscribeFunc overrides the default behavior when set.
	TranscribeFunc func(ctx context.Context, path string) (*Outcome, error)

	// Text is returned for every call when TranscribeFunc is nil.
	Text string

	// Err is returned for every call when TranscribeFunc is nil.
	Err error

	// Delay is slept before returning, honoring ctx cancellation.
	Delay time.Duration

	calls []string
}

// Name implements Transcriber.
func (m *MockTranscriber) Name() string { return "mock" }

// Transcribe implements Transcriber.
func (m *MockTranscriber) Transcribe(ctx context.Context, path string) (*Outcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, path)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, path)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &Outcome{Text: m.Text, Provider: "mock", Model: "mock-model"}, nil
}

// Calls returns the paths passed to Transcribe, in order.
func (m *MockTranscriber) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockSummarizer is a configurable Summarizer for tests.
type MockSummarizer struct {
	mu sync.Mutex

	SummarizeFunc func(ctx context.Context, text string) (*Outcome, error)
	Text          string
	Err           error

	calls []string
}

// Name implements Summarizer.
func (m *MockSummarizer) Name() string { return "mock" }

// Summarize implements Summarizer.
func (m *MockSummarizer) Summarize(ctx context.Context, text string) (*Outcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()

	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, text)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &Outcome{Text: m.Text, Provider: "mock", Model: "mock-model"}, nil
}

// Calls returns the inputs passed to Summarize, in order.
func (m *MockSummarizer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

var (
	_ Transcriber = (*MockTranscriber)(nil)
	_ Summarizer  = (*MockSummarizer)(nil)
)
