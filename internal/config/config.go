package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
)

// Config is read once from the environment at process start.
type Config struct {
	TableName string `env:"DDB_TABLE,required,notEmpty"`

	// BedrockModelID is the historical name; ModelID takes precedence when both are set.
	BedrockModelID string `env:"BEDROCK_MODEL_ID"`
	ModelID        string `env:"MODEL_ID"`
	MemoryLimit    int    `env:"MEMORY_LIMIT" envDefault:"10"`

	Provider          string `env:"INFERENCE_PROVIDER" envDefault:"bedrock"`
	OpenAIParamPrefix string `env:"OPENAI_PARAM_PREFIX"`

	// OpenAIBaseURL is empty unless overridden; the openai client owns the default.
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	SystemPromptParam string `env:"SYSTEM_PROMPT_PARAM"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Model returns the configured model identifier.
func (c *Config) Model() string {
	if m := strings.TrimSpace(c.ModelID); m != "" {
		return m
	}
	return strings.TrimSpace(c.BedrockModelID)
}

func (c *Config) validate() error {
	if c.Model() == "" {
		return errors.New("config: BEDROCK_MODEL_ID or MODEL_ID must be set")
	}
	if c.MemoryLimit <= 0 {
		return fmt.Errorf("config: MEMORY_LIMIT must be positive, got %d", c.MemoryLimit)
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case ProviderBedrock:
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIParamPrefix) == "" {
			return errors.New("config: OPENAI_PARAM_PREFIX is required when INFERENCE_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("config: unknown INFERENCE_PROVIDER %q", c.Provider)
	}
	return nil
}
