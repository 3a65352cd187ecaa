package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

const (
	OpenAIName    = "openai"
	OpenAIBaseURL = "https://api.openai.com/v1"
	OpenAIModel   = "gpt-4o"

	// DefaultTranscribePrompt asks for a faithful transcription of a
	// scanned letter page.
	DefaultTranscribePrompt = "Transcribe the handwritten or typed letter in this scan exactly as written. " +
		"Preserve line breaks, misspellings, and abbreviations. Output only the transcription."

	// DefaultSummarizePrompt asks for a short summary of a full letter.
	DefaultSummarizePrompt = "Summarize this letter in a short paragraph: who is writing, what they report, " +
		"and any names, places, or dates mentioned. The letter text follows."
)

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Prompt     string // transcription or summarization instruction
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIClient implements Transcriber and Summarizer against the OpenAI
// Responses API.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	prompt     string
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	limiter    *RateLimiter
	client     *http.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = OpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		prompt:     cfg.Prompt,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    NewRateLimiter(cfg.RateLimit),
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Transcribe sends the PDF at path to the Responses API as an inline
// base64 file together with the transcription prompt.
func (c *OpenAIClient) Transcribe(ctx context.Context, path string) (*Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// A missing or unreadable source file will not fix itself.
		return nil, &Failure{Message: fmt.Sprintf("failed to read %s: %v", path, err)}
	}

	prompt := c.prompt
	if prompt == "" {
		prompt = DefaultTranscribePrompt
	}

	req := openaiRequest{
		Model: c.model,
		Input: []openaiInputMessage{{
			Role: "user",
			Content: []openaiContentPart{
				{
					Type:     "input_file",
					Filename: filepath.Base(path),
					FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
				},
				{Type: "input_text", Text: prompt},
			},
		}},
	}
	return c.invoke(ctx, req)
}

// Summarize sends combined document text to the Responses API together
// with the summarization prompt.
func (c *OpenAIClient) Summarize(ctx context.Context, text string) (*Outcome, error) {
	prompt := c.prompt
	if prompt == "" {
		prompt = DefaultSummarizePrompt
	}

	req := openaiRequest{
		Model: c.model,
		Input: []openaiInputMessage{{
			Role: "user",
			Content: []openaiContentPart{
				{Type: "input_text", Text: prompt + "\n\n" + text},
			},
		}},
	}
	return c.invoke(ctx, req)
}

func (c *OpenAIClient) invoke(ctx context.Context, req openaiRequest) (*Outcome, error) {
	start := time.Now()
	requestID := uuid.New().String()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportFailure(err)
	}

	body, err := retry.DoWithData(
		func() (*ResponseBody, error) { return c.doRequest(ctx, req) },
		retry.RetryIf(Retryable),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	text, ok := body.Text()
	if !ok {
		if body.Error != nil {
			return nil, &Failure{Message: body.Error.Message}
		}
		return nil, &Failure{Message: "no text in response"}
	}

	model := body.Model
	if model == "" {
		model = c.model
	}

	return &Outcome{
		Text:          text,
		Provider:      OpenAIName,
		Model:         model,
		RequestID:     requestID,
		ExecutionTime: time.Since(start),
	}, nil
}

func (c *OpenAIClient) doRequest(ctx context.Context, body openaiRequest) (*ResponseBody, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/responses", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportFailure(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportFailure(err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.Record429()
		}
		return nil, classifyHTTP(resp.StatusCode, msg)
	}

	var parsed ResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &Failure{Message: fmt.Sprintf("failed to unmarshal response: %v", err)}
	}
	return &parsed, nil
}

// OpenAI Responses API request types

type openaiRequest struct {
	Model string               `json:"model"`
	Input []openaiInputMessage `json:"input"`
}

type openaiInputMessage struct {
	Role    string              `json:"role"`
	Content []openaiContentPart `json:"content"`
}

type openaiContentPart struct {
	Type     string `json:"type"` // "input_file" or "input_text"
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Text     string `json:"text,omitempty"`
}

// BuildTranscribeBody builds the Responses API request body for one PDF,
// used by the bulk submitter to package many units into a single batch.
func BuildTranscribeBody(model, prompt, path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if prompt == "" {
		prompt = DefaultTranscribePrompt
	}
	req := openaiRequest{
		Model: model,
		Input: []openaiInputMessage{{
			Role: "user",
			Content: []openaiContentPart{
				{
					Type:     "input_file",
					Filename: filepath.Base(path),
					FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
				},
				{Type: "input_text", Text: prompt},
			},
		}},
	}
	return json.Marshal(req)
}

// BuildSummarizeBody builds the Responses API request body for one
// document's combined text.
func BuildSummarizeBody(model, prompt, text string) (json.RawMessage, error) {
	if prompt == "" {
		prompt = DefaultSummarizePrompt
	}
	req := openaiRequest{
		Model: model,
		Input: []openaiInputMessage{{
			Role: "user",
			Content: []openaiContentPart{
				{Type: "input_text", Text: prompt + "\n\n" + text},
			},
		}},
	}
	return json.Marshal(req)
}

// Verify interfaces
var _ Transcriber = (*OpenAIClient)(nil)
var _ Summarizer = (*OpenAIClient)(nil)
