package config

import (
	"time"

	"github.com/jackzampolin/letterpress/internal/providers"
)

// Config holds letterpress configuration.
// Stored at: ~/.letterpress/config.yaml
type Config struct {
	Transcribers map[string]ProviderCfg `mapstructure:"transcribers" yaml:"transcribers" json:"transcribers"`
	Summarizers  map[string]ProviderCfg `mapstructure:"summarizers" yaml:"summarizers" json:"summarizers"`
	Defaults     DefaultsCfg            `mapstructure:"defaults" yaml:"defaults" json:"defaults"`
	Batch        BatchCfg               `mapstructure:"batch" yaml:"batch" json:"batch"`
	Server       ServerCfg              `mapstructure:"server" yaml:"server" json:"server"`
}

// ProviderCfg configures one AI backend.
type ProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type" json:"type"`       // "openai", "gemini"
	Model          string  `mapstructure:"model" yaml:"model" json:"model"`     // model name
	APIKey         string  `mapstructure:"api_key" yaml:"api_key" json:"api_key"` // supports ${ENV_VAR} syntax
	Prompt         string  `mapstructure:"prompt" yaml:"prompt,omitempty" json:"prompt,omitempty"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"` // requests per second
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// DefaultsCfg selects providers and pacing for the synchronous runner.
type DefaultsCfg struct {
	Transcriber       string `mapstructure:"transcriber" yaml:"transcriber" json:"transcriber"`
	Summarizer        string `mapstructure:"summarizer" yaml:"summarizer" json:"summarizer"`
	BatchSize         int    `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size"`
	UnitDelaySeconds  int    `mapstructure:"unit_delay_seconds" yaml:"unit_delay_seconds" json:"unit_delay_seconds"`
	BatchDelaySeconds int    `mapstructure:"batch_delay_seconds" yaml:"batch_delay_seconds" json:"batch_delay_seconds"`
}

// BatchCfg configures the bulk submission path.
type BatchCfg struct {
	Model  string `mapstructure:"model" yaml:"model" json:"model"`
	APIKey string `mapstructure:"api_key" yaml:"api_key" json:"api_key"` // supports ${ENV_VAR} syntax
}

// ServerCfg configures the browse API server.
type ServerCfg struct {
	Addr string `mapstructure:"addr" yaml:"addr" json:"addr"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transcribers: map[string]ProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 1.0,
				Enabled:   true,
			},
			"gemini": {
				Type:      "gemini",
				Model:     "gemini-2.0-flash",
				APIKey:    "${GEMINI_API_KEY}",
				RateLimit: 1.0,
				Enabled:   false,
			},
		},
		Summarizers: map[string]ProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 1.0,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			Transcriber:       "openai",
			Summarizer:        "openai",
			BatchSize:         10,
			UnitDelaySeconds:  2,
			BatchDelaySeconds: 10,
		},
		Batch: BatchCfg{
			Model:  "gpt-4o",
			APIKey: "${OPENAI_API_KEY}",
		},
		Server: ServerCfg{
			Addr: "localhost:8000",
		},
	}
}

// GetTranscriber returns a transcriber config by name.
func (c *Config) GetTranscriber(name string) (ProviderCfg, bool) {
	cfg, ok := c.Transcribers[name]
	return cfg, ok
}

// GetSummarizer returns a summarizer config by name.
func (c *Config) GetSummarizer(name string) (ProviderCfg, bool) {
	cfg, ok := c.Summarizers[name]
	return cfg, ok
}

// UnitDelay returns the configured inter-unit pacing delay.
func (d DefaultsCfg) UnitDelay() time.Duration {
	return time.Duration(d.UnitDelaySeconds) * time.Second
}

// BatchDelay returns the configured inter-batch pacing delay.
func (d DefaultsCfg) BatchDelay() time.Duration {
	return time.Duration(d.BatchDelaySeconds) * time.Second
}

// ToRegistryConfig converts the config to a format suitable for
// providers.NewRegistryFromConfig. It resolves all ${ENV_VAR}
// references in API keys.
func (c *Config) ToRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Transcribers: make(map[string]providers.BackendConfig),
		Summarizers:  make(map[string]providers.BackendConfig),
	}
	for name, p := range c.Transcribers {
		cfg.Transcribers[name] = backendConfig(p)
	}
	for name, p := range c.Summarizers {
		cfg.Summarizers[name] = backendConfig(p)
	}
	return cfg
}

func backendConfig(p ProviderCfg) providers.BackendConfig {
	return providers.BackendConfig{
		Type:       p.Type,
		Model:      p.Model,
		APIKey:     ResolveEnvVars(p.APIKey),
		Prompt:     p.Prompt,
		RateLimit:  p.RateLimit,
		MaxRetries: p.MaxRetries,
		Timeout:    time.Duration(p.TimeoutSeconds) * time.Second,
		Enabled:    p.Enabled,
	}
}
