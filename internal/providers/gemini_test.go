package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testGeminiClient(serverURL string) *GeminiClient {
	return NewGeminiClient(GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		Model:      "gemini-2.0-flash",
		RateLimit:  1000,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
}

func TestGeminiTranscribe(t *testing.T) {
	var gotKey string
	var gotPath string
	var gotReq geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Jan 15. Dear folks at home."}]}}]}`))
	}))
	defer server.Close()

	client := testGeminiClient(server.URL)
	outcome, err := client.Transcribe(context.Background(), writeTestPDF(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if outcome.Text != "Jan 15. Dear folks at home." {
		t.Errorf("unexpected text: %q", outcome.Text)
	}
	if outcome.Provider != GeminiName {
		t.Errorf("Provider = %q, want %q", outcome.Provider, GeminiName)
	}
	if gotKey != "test-key" {
		t.Errorf("x-goog-api-key = %q", gotKey)
	}
	if !strings.HasSuffix(gotPath, "/models/gemini-2.0-flash:generateContent") {
		t.Errorf("unexpected path: %s", gotPath)
	}

	if len(gotReq.Contents) != 1 || len(gotReq.Contents[0].Parts) != 2 {
		t.Fatal("expected one content with pdf and prompt parts")
	}
	inline := gotReq.Contents[0].Parts[0].InlineData
	if inline == nil || inline.MimeType != "application/pdf" || inline.Data == "" {
		t.Error("first part should be the inline pdf")
	}
	if gotReq.Contents[0].Parts[1].Text == "" {
		t.Error("second part should carry the prompt")
	}
}

func TestGeminiRetryOn503(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"recovered"}]}}]}`))
	}))
	defer server.Close()

	client := testGeminiClient(server.URL)
	outcome, err := client.Transcribe(context.Background(), writeTestPDF(t))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if outcome.Text != "recovered" {
		t.Errorf("unexpected text: %q", outcome.Text)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := testGeminiClient(server.URL)
	_, err := client.Transcribe(context.Background(), writeTestPDF(t))
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
	if Retryable(err) {
		t.Error("empty response should be classified permanent")
	}
}
