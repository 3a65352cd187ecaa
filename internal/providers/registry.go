package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry holds references to transcription and summarization backends,
// keyed by name so the runner can select one at runtime without knowing
// any vendor specifics.
type Registry struct {
	mu           sync.RWMutex
	transcribers map[string]Transcriber
	summarizers  map[string]Summarizer
	logger       *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		transcribers: make(map[string]Transcriber),
		summarizers:  make(map[string]Summarizer),
		logger:       slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterTranscriber registers a transcription backend by name.
func (r *Registry) RegisterTranscriber(name string, t Transcriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribers[name] = t
	if r.logger != nil {
		r.logger.Info("registered transcriber", "name", name)
	}
}

// RegisterSummarizer registers a summarization backend by name.
func (r *Registry) RegisterSummarizer(name string, s Summarizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summarizers[name] = s
	if r.logger != nil {
		r.logger.Info("registered summarizer", "name", name)
	}
}

// GetTranscriber returns a transcription backend by name.
func (r *Registry) GetTranscriber(name string) (Transcriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transcribers[name]
	if !ok {
		return nil, fmt.Errorf("transcriber not found: %s", name)
	}
	return t, nil
}

// GetSummarizer returns a summarization backend by name.
func (r *Registry) GetSummarizer(name string) (Summarizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.summarizers[name]
	if !ok {
		return nil, fmt.Errorf("summarizer not found: %s", name)
	}
	return s, nil
}

// ListTranscribers returns all registered transcriber names.
func (r *Registry) ListTranscribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transcribers))
	for name := range r.transcribers {
		names = append(names, name)
	}
	return names
}

// ListSummarizers returns all registered summarizer names.
func (r *Registry) ListSummarizers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.summarizers))
	for name := range r.summarizers {
		names = append(names, name)
	}
	return names
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	// Transcribers maps provider names to their config
	Transcribers map[string]BackendConfig

	// Summarizers maps provider names to their config
	Summarizers map[string]BackendConfig
}

// BackendConfig configures one vendor backend with a resolved API key.
type BackendConfig struct {
	Type       string // "openai", "gemini"
	Model      string
	APIKey     string
	Prompt     string
	RateLimit  float64 // requests per second
	MaxRetries int
	Timeout    time.Duration
	Enabled    bool
}

// NewRegistryFromConfig creates a registry with backends based on
// configuration. Only enabled backends with API keys are registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()

	for name, bc := range cfg.Transcribers {
		if !bc.Enabled || bc.APIKey == "" {
			continue
		}
		if t := createTranscriber(bc); t != nil {
			r.transcribers[name] = t
		}
	}

	for name, bc := range cfg.Summarizers {
		if !bc.Enabled || bc.APIKey == "" {
			continue
		}
		if s := createSummarizer(bc); s != nil {
			r.summarizers[name] = s
		}
	}

	return r
}

// createTranscriber creates a transcription backend based on type.
func createTranscriber(cfg BackendConfig) Transcriber {
	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Prompt:     cfg.Prompt,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		})
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Prompt:     cfg.Prompt,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil
	}
}

// createSummarizer creates a summarization backend based on type.
func createSummarizer(cfg BackendConfig) Summarizer {
	switch cfg.Type {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Prompt:     cfg.Prompt,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil
	}
}
