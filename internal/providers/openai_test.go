package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeTestPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "430115-1.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("failed to write test pdf: %v", err)
	}
	return path
}

func testOpenAIClient(serverURL string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		Model:      "gpt-4o",
		RateLimit:  1000,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
}

func TestOpenAITranscribe(t *testing.T) {
	var gotAuth string
	var gotReq openaiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ResponseBody{
			ID:         "resp_123",
			Model:      "gpt-4o-2024",
			OutputText: "Dear Mother, all is well here.",
		})
	}))
	defer server.Close()

	client := testOpenAIClient(server.URL)
	outcome, err := client.Transcribe(context.Background(), writeTestPDF(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if outcome.Text != "Dear Mother, all is well here." {
		t.Errorf("unexpected text: %q", outcome.Text)
	}
	if outcome.Provider != OpenAIName {
		t.Errorf("Provider = %q, want %q", outcome.Provider, OpenAIName)
	}
	if outcome.Model != "gpt-4o-2024" {
		t.Errorf("Model = %q, want server-reported model", outcome.Model)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	if len(gotReq.Input) != 1 {
		t.Fatalf("expected 1 input message, got %d", len(gotReq.Input))
	}
	parts := gotReq.Input[0].Content
	if len(parts) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(parts))
	}
	if parts[0].Type != "input_file" || !strings.HasPrefix(parts[0].FileData, "data:application/pdf;base64,") {
		t.Errorf("first part should be inline pdf, got type %q", parts[0].Type)
	}
	if parts[0].Filename != "430115-1.pdf" {
		t.Errorf("Filename = %q", parts[0].Filename)
	}
	if parts[1].Type != "input_text" || parts[1].Text == "" {
		t.Errorf("second part should carry the prompt")
	}
}

func TestOpenAITranscribe_StructuredOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ResponseBody{
			ID: "resp_456",
			Output: []ResponseOutput{
				{Type: "message", Content: []ResponseContent{
					{Type: "output_text", Text: "from the structured path"},
				}},
			},
		})
	}))
	defer server.Close()

	client := testOpenAIClient(server.URL)
	outcome, err := client.Transcribe(context.Background(), writeTestPDF(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if outcome.Text != "from the structured path" {
		t.Errorf("unexpected text: %q", outcome.Text)
	}
}

func TestOpenAISummarize(t *testing.T) {
	var gotReq openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(ResponseBody{OutputText: "A letter home about camp life."})
	}))
	defer server.Close()

	client := testOpenAIClient(server.URL)
	outcome, err := client.Summarize(context.Background(), "Dear Mother, ...")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if outcome.Text != "A letter home about camp life." {
		t.Errorf("unexpected text: %q", outcome.Text)
	}
	if len(gotReq.Input) != 1 || len(gotReq.Input[0].Content) != 1 {
		t.Fatal("expected a single text part")
	}
	if !strings.Contains(gotReq.Input[0].Content[0].Text, "Dear Mother") {
		t.Error("request should carry the document text")
	}
}

func TestOpenAIRetryOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
			return
		}
		json.NewEncoder(w).Encode(ResponseBody{OutputText: "second time lucky"})
	}))
	defer server.Close()

	client := testOpenAIClient(server.URL)
	outcome, err := client.Transcribe(context.Background(), writeTestPDF(t))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if outcome.Text != "second time lucky" {
		t.Errorf("unexpected text: %q", outcome.Text)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAIPermanentErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid file"}}`))
	}))
	defer server.Close()

	client := testOpenAIClient(server.URL)
	_, err := client.Transcribe(context.Background(), writeTestPDF(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if Retryable(err) {
		t.Error("400 should be classified permanent")
	}
	if calls.Load() != 1 {
		t.Errorf("permanent error should not retry, got %d calls", calls.Load())
	}
	if !strings.Contains(err.Error(), "invalid file") {
		t.Errorf("error should carry server message: %v", err)
	}
}

func TestOpenAITranscribe_MissingFile(t *testing.T) {
	client := testOpenAIClient("http://localhost:1")
	_, err := client.Transcribe(context.Background(), "/nonexistent/file.pdf")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if Retryable(err) {
		t.Error("missing file should be permanent")
	}
}

func TestBuildTranscribeBody(t *testing.T) {
	path := writeTestPDF(t)
	raw, err := BuildTranscribeBody("gpt-4o", "", path)
	if err != nil {
		t.Fatalf("BuildTranscribeBody failed: %v", err)
	}

	var req openaiRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if req.Model != "gpt-4o" {
		t.Errorf("Model = %q", req.Model)
	}
	parts := req.Input[0].Content
	if parts[0].Type != "input_file" || parts[1].Text != DefaultTranscribePrompt {
		t.Error("body should carry inline pdf and the default prompt")
	}
}

func TestBuildSummarizeBody(t *testing.T) {
	raw, err := BuildSummarizeBody("gpt-4o", "Summarize:", "the letter text")
	if err != nil {
		t.Fatalf("BuildSummarizeBody failed: %v", err)
	}
	var req openaiRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	got := req.Input[0].Content[0].Text
	if !strings.HasPrefix(got, "Summarize:") || !strings.Contains(got, "the letter text") {
		t.Errorf("unexpected body text: %q", got)
	}
}
