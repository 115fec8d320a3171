package config

// DefaultConfig returns a Config with the table's documented defaults. Load
// overlays a YAML file and then DOCPIPE_-prefixed environment variables on
// top of this.
func DefaultConfig() *Config {
	return &Config{
		LLMProvider: "openai",
		LLMModel:    "gpt-4o-mini",

		DBURL: "file:docpipe.db",

		APITimeoutSeconds: 120,
		MaxRetries:        5,
		RateLimitRPM:      60,
		BatchSize:         5,

		CostAlertT1: 1.0,
		CostAlertT2: 5.0,
		CostAlertT3: 20.0,
		CostCeiling: 0, // 0 disables the preflight ceiling

		LogLevel:  LogLevelInfo,
		LogFormat: LogFormatJSON,

		VectorStoreName:    "docpipe",
		VectorCacheTTLDays: 30,
		VectorCacheBackend: "sqlite",
		RedisAddr:          "localhost:6379",

		SearchTopK:      10,
		SearchThreshold: 0.0,

		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDimension: 1536,
	}
}
