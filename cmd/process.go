package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/walksalot/docpipe/internal/config"
	"github.com/walksalot/docpipe/internal/cost"
	"github.com/walksalot/docpipe/internal/db"
	"github.com/walksalot/docpipe/internal/documents"
	"github.com/walksalot/docpipe/internal/embeddings"
	"github.com/walksalot/docpipe/internal/errkind"
	"github.com/walksalot/docpipe/internal/llm"
	"github.com/walksalot/docpipe/internal/observability"
	"github.com/walksalot/docpipe/internal/pipeline"
	"github.com/walksalot/docpipe/internal/retry"
	"github.com/walksalot/docpipe/internal/vectorstore"
)

var processConcurrency int

var processCmd = &cobra.Command{
	Use:   "process [paths...]",
	Short: "Hash, extract, persist, and index one or more PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 5, "max files processed at once")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, paths []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(int(config.ExitConfigError))
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarning:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	var handler slog.Handler
	if cfg.LogFormat == config.LogFormatText {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orch, telemetry, err := buildPipeline(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(int(config.ExitConfigError))
	}

	bar := progressbar.Default(int64(len(paths)), "processing")
	onProgress := func(done, total int, path string) {
		bar.Set(done)
	}
	pool := pipeline.NewPool(processConcurrency, orch, onProgress)

	br := pool.ProcessPaths(ctx, paths)
	summary := pipeline.Summarize(br)

	fmt.Printf("\ncompleted=%d duplicate=%d vector_upload_failed=%d failed=%d skipped=%d\n",
		summary.Completed, summary.Duplicate, summary.VectorUploadFailed, summary.Failed, summary.Skipped)
	fmt.Printf("system_status=%s\n", telemetry.Health.Status())
	for _, a := range telemetry.Alerts.Log() {
		fmt.Printf("alert component=%s severity=%s message=%q\n", a.Component, a.Severity, a.Message)
	}

	if ctx.Err() != nil {
		os.Exit(int(config.ExitCancelled))
	}
	for _, e := range br.Errors {
		if errkind.Is(e, errkind.CircuitOpen) || errkind.Is(e, errkind.Transient) {
			os.Exit(int(config.ExitUnrecoverable))
		}
	}
	if summary.Failed > 0 {
		os.Exit(int(config.ExitUnrecoverable))
	}
	return nil
}

// cachedEmbedder adapts a *embeddings.Cache (which dedupes and tiers
// lookups by model+text) to the plain embeddings.Embedder interface the
// vector store backend expects, so every embedding the backend requests
// passes through the cache instead of hitting the provider directly.
type cachedEmbedder struct {
	cache *embeddings.Cache
	model string
	dims  int
}

func (c *cachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.cache.BatchGet(ctx, c.model, texts)
}

func (c *cachedEmbedder) Dimensions() int { return c.dims }
func (c *cachedEmbedder) Name() string    { return c.model }

// buildDurableTier selects the embedding cache's tier-2 backend per
// cfg.VectorCacheBackend: "sqlite" (default, colocated with the document
// database) or "redis" (native TTL eviction).
func buildDurableTier(cfg *config.Config, sqlDB *db.DB) (embeddings.DurableTier, error) {
	switch cfg.VectorCacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return embeddings.NewRedisTier(client, "", cfg.VectorCacheTTL()), nil
	default:
		return embeddings.NewSQLiteTier(sqlDB)
	}
}

// buildPipeline wires every component the process command needs, in
// dependency order: telemetry, database, relational store, cost estimator,
// LLM client, embedding cache, vector store client, orchestrator.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Orchestrator, pipeline.Telemetry, error) {
	telemetry := pipeline.Telemetry{
		Metrics: observability.NewMetricsCollector(),
		Alerts:  observability.NewAlertManager(0),
		Health:  observability.NewHealthRegistry(),
	}

	dbPath := strings.TrimPrefix(cfg.DBURL, "file:")
	sqlDB, err := db.Open(dbPath)
	if err != nil {
		return nil, telemetry, fmt.Errorf("opening database: %w", err)
	}

	store, err := documents.Open(sqlDB)
	if err != nil {
		return nil, telemetry, fmt.Errorf("opening document store: %w", err)
	}

	estimator := cost.NewEstimator(cost.DefaultTable())

	provider, err := llm.NewProvider(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMModel)
	if err != nil {
		return nil, telemetry, fmt.Errorf("building llm provider: %w", err)
	}
	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxAttempts = cfg.MaxRetries
	llmClient := llm.NewClient(provider, retryPolicy, 5, 30*time.Second, logger)

	rawEmbedder := embeddings.NewOpenAIEmbedder(cfg.LLMAPIKey, embeddings.ModelTextEmbedding3Small)
	durableTier, err := buildDurableTier(cfg, sqlDB)
	if err != nil {
		return nil, telemetry, fmt.Errorf("opening embedding cache: %w", err)
	}
	embedCache := embeddings.NewCache(durableTier, rawEmbedder, embeddings.Config{})

	chromemBackend := vectorstore.NewChromemBackend(&cachedEmbedder{
		cache: embedCache,
		model: cfg.EmbeddingModel,
		dims:  cfg.EmbeddingDimension,
	})
	vectorClient := vectorstore.NewClient(chromemBackend, vectorstore.DefaultPollPolicy(), dbPath+".vectors")

	orchCfg := pipeline.Config{
		Model:           cfg.LLMModel,
		VectorStoreName: cfg.VectorStoreName,
		CostCeilingUSD:  cfg.CostCeiling,
		CostAlertT1:     cfg.CostAlertT1,
		CostAlertT2:     cfg.CostAlertT2,
		CostAlertT3:     cfg.CostAlertT3,
	}
	orch := pipeline.NewOrchestrator(store, llmClient, estimator, vectorClient, orchCfg, logger, telemetry)
	return orch, telemetry, nil
}
