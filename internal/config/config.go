package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix every environment-variable override carries, per
// the config table (LLM_API_KEY, BATCH_SIZE, ...) mapped to DOCPIPE_LLM_
// API_KEY, DOCPIPE_BATCH_SIZE, etc. so docpipe's own environment variables
// never collide with an unrelated LLM_* or BATCH_SIZE already set in the
// caller's shell.
const envPrefix = "DOCPIPE_"

// Load reads configuration from path (if it exists), then overlays
// DOCPIPE_-prefixed environment variables, then validates. Configuration is
// immutable after Load returns.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: accessing %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the config table's per-field constraints. A failure
// here is fatal at startup (ExitConfigError), never fail-soft.
func (c *Config) Validate() error {
	if len(c.LLMAPIKey) < 20 {
		return fmt.Errorf("config: llm_api_key is required and must be at least 20 characters")
	}
	if c.LLMProvider != "openai" && c.LLMProvider != "anthropic" {
		return fmt.Errorf("config: llm_provider %q must be one of openai, anthropic", c.LLMProvider)
	}
	if !allowedModels[c.LLMModel] {
		return fmt.Errorf("config: llm_model %q is not in the allow-list (%v)", c.LLMModel, AllowedModels())
	}
	if c.APITimeoutSeconds < 30 || c.APITimeoutSeconds > 600 {
		return fmt.Errorf("config: api_timeout_seconds must be in [30, 600], got %d", c.APITimeoutSeconds)
	}
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return fmt.Errorf("config: max_retries must be in [1, 10], got %d", c.MaxRetries)
	}
	if c.RateLimitRPM < 1 || c.RateLimitRPM > 500 {
		return fmt.Errorf("config: rate_limit_rpm must be in [1, 500], got %d", c.RateLimitRPM)
	}
	if c.BatchSize < 1 || c.BatchSize > 100 {
		return fmt.Errorf("config: batch_size must be in [1, 100], got %d", c.BatchSize)
	}
	if !(c.CostAlertT1 < c.CostAlertT2 && c.CostAlertT2 < c.CostAlertT3) {
		return fmt.Errorf("config: cost_alert_t1 < t2 < t3 must hold, got %v/%v/%v", c.CostAlertT1, c.CostAlertT2, c.CostAlertT3)
	}
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("config: log_level %q must be one of debug, info, warning, error", c.LogLevel)
	}
	switch c.LogFormat {
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("config: log_format %q must be one of json, text", c.LogFormat)
	}
	if c.VectorCacheTTLDays < 1 {
		return fmt.Errorf("config: vector_cache_ttl_days must be >= 1, got %d", c.VectorCacheTTLDays)
	}
	switch c.VectorCacheBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("config: vector_cache_backend %q must be one of sqlite, redis", c.VectorCacheBackend)
	}
	if c.SearchTopK < 1 {
		return fmt.Errorf("config: search_top_k must be >= 1, got %d", c.SearchTopK)
	}
	if c.SearchThreshold < 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("config: search_threshold must be in [0, 1], got %v", c.SearchThreshold)
	}
	return nil
}

// APIKeyEnvVar returns the vendor's conventional API key environment
// variable name for provider, or "" for an unknown provider. Load does not
// read these variables; the key comes from llm_api_key (DOCPIPE_LLM_API_KEY).
func APIKeyEnvVar(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
