// Command liber is the book recommendation server: a three-stage agent
// pipeline over a pgvector-backed catalog, exposed over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/liberhq/liber/internal/agent"
	"github.com/liberhq/liber/internal/agent/orchestrator"
	"github.com/liberhq/liber/internal/api"
	"github.com/liberhq/liber/internal/cache"
	"github.com/liberhq/liber/internal/catalog/postgres"
	"github.com/liberhq/liber/internal/config"
	"github.com/liberhq/liber/internal/embedding"
	"github.com/liberhq/liber/internal/metadata"
	"github.com/liberhq/liber/internal/metering"
	"github.com/liberhq/liber/internal/observe"
	"github.com/liberhq/liber/internal/scraper"
	"github.com/liberhq/liber/pkg/provider/embeddings"
	oaembed "github.com/liberhq/liber/pkg/provider/embeddings/openai"
	"github.com/liberhq/liber/pkg/provider/llm"
	"github.com/liberhq/liber/pkg/provider/llm/anyllm"
)

// metadataRateLimit is the per-host request rate against the external
// catalog APIs.
const metadataRateLimit = 2.0

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "liber: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "liber: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("liber starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "liber",
		ServiceVersion: api.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// Providers.
	summarizer, err := buildLLM(cfg.Providers.Summarizer)
	if err != nil {
		slog.Error("failed to build summarizer provider", "err", err)
		return 1
	}
	reasoner, err := buildLLM(cfg.Providers.Reasoner)
	if err != nil {
		slog.Error("failed to build reasoner provider", "err", err)
		return 1
	}
	embedProvider, err := buildEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}
	summarizer = observe.InstrumentLLM(summarizer, metrics)
	reasoner = observe.InstrumentLLM(reasoner, metrics)
	embedProvider = observe.InstrumentEmbeddings(embedProvider, metrics)
	slog.Info("providers created",
		"summarizer", summarizer.ModelID(),
		"reasoner", reasoner.ModelID(),
		"embeddings", embedProvider.ModelID(),
	)

	// Catalog store.
	store, err := postgres.NewStore(ctx, cfg.Database.DSN, cfg.Database.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to open catalog store", "err", err)
		return 1
	}
	defer store.Close()

	// Shared infrastructure.
	resultCache := cache.NewMemory(cfg.Cache.MaxEntries)
	aggregate := metering.NewAggregate()

	scraperTimeout := time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second
	scraperRate := time.Duration(cfg.Scraper.RateLimitSeconds * float64(time.Second))
	reviewScraper := scraper.New(scraperRate, scraperTimeout, cfg.Scraper.MaxReviews,
		scraper.WithMetrics(metrics))

	resolver := metadata.NewResolver(
		metadata.NewOpenLibrary(scraperTimeout, metadataRateLimit),
		metadata.NewGoogleBooks(cfg.Providers.GoogleBooksAPIKey, scraperTimeout, metadataRateLimit),
	)

	embedService := embedding.NewService(
		embedProvider,
		store,
		resultCache,
		cfg.Database.EmbeddingDimensions,
		time.Duration(cfg.Cache.EmbeddingTTLSeconds)*time.Second,
	)

	// Pipeline.
	profiler := agent.NewProfiler(
		summarizer,
		store,
		resolver,
		resultCache,
		time.Duration(cfg.Cache.TasteProfileTTLSeconds)*time.Second,
	)
	retriever := agent.NewRetriever(embedService, store, store)
	explainer := agent.NewExplainer(reasoner, cfg.Agents.ExplanationTopN)
	pipeline := orchestrator.New(orchestrator.Config{
		Profiler:      profiler,
		Retriever:     retriever,
		Explainer:     explainer,
		Cache:         resultCache,
		Aggregate:     aggregate,
		Metrics:       metrics,
		CacheTTL:      time.Duration(cfg.Cache.RecommendationTTLSeconds) * time.Second,
		MaxCandidates: cfg.Agents.CandidateTopN,
	})

	// HTTP server.
	server := api.NewServer(api.Config{
		Recommender: pipeline,
		Store:       store,
		Searcher:    resolver,
		Scraper:     reviewScraper,
		Embedder:    embedService,
		Aggregate:   aggregate,
		DBPing:      store.Ping,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Handler(metrics),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildLLM constructs a chat provider from a config entry via any-llm.
func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// buildEmbeddings constructs the embeddings provider from a config entry.
func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	if entry.Name != "openai" {
		return nil, fmt.Errorf("unsupported embeddings provider %q", entry.Name)
	}
	var opts []oaembed.Option
	if entry.BaseURL != "" {
		opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
	}
	return oaembed.New(entry.APIKey, entry.Model, opts...)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
