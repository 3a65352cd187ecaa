package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema constrains the effective configuration: provider entries
// must carry a known type, pacing and limits must be non-negative, and
// the default provider selections must be present.
const configSchema = `{
  "type": "object",
  "required": ["defaults"],
  "properties": {
    "transcribers": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/provider"}
    },
    "summarizers": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/provider"}
    },
    "defaults": {
      "type": "object",
      "required": ["transcriber", "summarizer"],
      "properties": {
        "transcriber": {"type": "string", "minLength": 1},
        "summarizer": {"type": "string", "minLength": 1},
        "batch_size": {"type": "integer", "minimum": 0},
        "unit_delay_seconds": {"type": "integer", "minimum": 0},
        "batch_delay_seconds": {"type": "integer", "minimum": 0}
      }
    },
    "batch": {
      "type": "object",
      "properties": {
        "model": {"type": "string"},
        "api_key": {"type": "string"}
      }
    },
    "server": {
      "type": "object",
      "properties": {
        "addr": {"type": "string"}
      }
    }
  },
  "$defs": {
    "provider": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["openai", "gemini"]},
        "model": {"type": "string"},
        "api_key": {"type": "string"},
        "prompt": {"type": "string"},
        "rate_limit": {"type": "number", "minimum": 0},
        "timeout_seconds": {"type": "integer", "minimum": 0},
        "max_retries": {"type": "integer", "minimum": 0},
        "enabled": {"type": "boolean"}
      }
    }
  }
}`

// Validate checks cfg against the config schema.
func Validate(cfg *Config) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", strings.NewReader(configSchema)); err != nil {
		return fmt.Errorf("failed to load config schema: %w", err)
	}
	schema, err := compiler.Compile("config.json")
	if err != nil {
		return fmt.Errorf("failed to compile config schema: %w", err)
	}

	// Round trip through JSON so the validator sees plain maps.
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
