// Package config loads runtime configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/flowline-ai/flowline/pkg/provider"
)

// Config is the process configuration.
type Config struct {
	DatabaseDSN      string
	SchedulerEnabled bool

	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	OllamaBaseURL   string
}

// Load reads configuration from the environment. A missing .env file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDSN:      os.Getenv("DATABASE_DSN"),
		SchedulerEnabled: boolEnv("SCHEDULER_ENABLED", true),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OllamaBaseURL:    os.Getenv("OLLAMA_BASE_URL"),
	}

	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required")
	}
	return cfg, nil
}

func boolEnv(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// APIKey implements provider.Settings.
func (c *Config) APIKey(family provider.Family) string {
	switch family {
	case provider.FamilyOpenAI:
		return c.OpenAIAPIKey
	case provider.FamilyAnthropic:
		return c.AnthropicAPIKey
	case provider.FamilyGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

// BaseURL implements provider.Settings.
func (c *Config) BaseURL(family provider.Family) string {
	if family == provider.FamilyOllama {
		return c.OllamaBaseURL
	}
	return ""
}
