package config

import "time"

// LogFormat selects the slog handler encoding.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LogLevel mirrors slog's four levels as a config-friendly string.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// allowedModels is the LLM_MODEL allow-list: any id outside this set is
// rejected at load time rather than failed on the first call.
var allowedModels = map[string]bool{
	"gpt-4o":                     true,
	"gpt-4o-mini":                true,
	"claude-3-5-sonnet-20241022": true,
	"claude-3-5-haiku-20241022":  true,
}

// AllowedModels returns the recognized LLM_MODEL values, for error messages.
func AllowedModels() []string {
	out := make([]string, 0, len(allowedModels))
	for m := range allowedModels {
		out = append(out, m)
	}
	return out
}

// Config is the top-level, environment-resolved configuration. It is loaded
// once at startup and never mutated afterward; every field here corresponds
// to one row of the config table.
type Config struct {
	LLMProvider string `koanf:"llm_provider"` // "openai" or "anthropic"
	LLMAPIKey   string `koanf:"llm_api_key"`
	LLMModel    string `koanf:"llm_model"`

	DBURL string `koanf:"db_url"`

	APITimeoutSeconds int `koanf:"api_timeout_seconds"`
	MaxRetries        int `koanf:"max_retries"`
	RateLimitRPM      int `koanf:"rate_limit_rpm"`
	BatchSize         int `koanf:"batch_size"`

	PromptPricePerM float64 `koanf:"prompt_price_per_m"`
	OutputPricePerM float64 `koanf:"output_price_per_m"`
	CachedPricePerM float64 `koanf:"cached_price_per_m"`

	CostAlertT1 float64 `koanf:"cost_alert_t1"`
	CostAlertT2 float64 `koanf:"cost_alert_t2"`
	CostAlertT3 float64 `koanf:"cost_alert_t3"`
	CostCeiling float64 `koanf:"cost_ceiling_usd"`

	LogLevel  LogLevel  `koanf:"log_level"`
	LogFormat LogFormat `koanf:"log_format"`

	VectorStoreName    string `koanf:"vector_store_name"`
	VectorCacheTTLDays int    `koanf:"vector_cache_ttl_days"`

	// VectorCacheBackend selects the embedding cache's tier-2 durable store:
	// "sqlite" (default, colocated with the document database) or "redis"
	// (native TTL eviction, for installations that already run Redis).
	VectorCacheBackend string `koanf:"vector_cache_backend"`
	RedisAddr          string `koanf:"redis_addr"`

	SearchTopK       int     `koanf:"search_top_k"`
	SearchThreshold  float64 `koanf:"search_threshold"`

	EmbeddingModel     string `koanf:"embedding_model"`
	EmbeddingDimension int    `koanf:"embedding_dimension"`
}

// APITimeout returns APITimeoutSeconds as a time.Duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// VectorCacheTTL returns VectorCacheTTLDays as a time.Duration.
func (c *Config) VectorCacheTTL() time.Duration {
	return time.Duration(c.VectorCacheTTLDays) * 24 * time.Hour
}

// ExitCode enumerates the process exit codes the config table's error
// handling design assigns.
type ExitCode int

const (
	ExitSuccess          ExitCode = 0
	ExitConfigError      ExitCode = 1
	ExitUnrecoverable    ExitCode = 2
	ExitCancelled        ExitCode = 3
)
