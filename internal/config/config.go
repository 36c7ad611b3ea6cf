// Package config provides the configuration schema and loader for the Liber
// recommendation server.
package config

// LogLevel controls log verbosity for the Liber server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Liber.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Providers ProvidersConfig `yaml:"providers"`
	Agents    AgentsConfig    `yaml:"agents"`
	Scraper   ScraperConfig   `yaml:"scraper"`
}

// ServerConfig holds network and logging settings for the Liber server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection settings for the book catalog.
type DatabaseConfig struct {
	// DSN is the PostgreSQL connection string. The target database must allow
	// CREATE EXTENSION vector.
	DSN string `yaml:"dsn"`

	// EmbeddingDimensions is the fixed dimension of every vector in the
	// book_embeddings table. Must match the embedding model's output dimension
	// (e.g., 1536 for text-embedding-3-small). Changing it after the first
	// migration requires a manual schema change.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// CacheConfig tunes the in-process result cache.
type CacheConfig struct {
	// MaxEntries caps the number of cached values before LRU eviction kicks in.
	MaxEntries int `yaml:"max_entries"`

	// TasteProfileTTLSeconds is how long a generated taste profile stays valid.
	TasteProfileTTLSeconds int `yaml:"taste_profile_ttl_seconds"`

	// RecommendationTTLSeconds is how long a full recommendation response stays valid.
	RecommendationTTLSeconds int `yaml:"recommendation_ttl_seconds"`

	// EmbeddingTTLSeconds is how long a per-book embedding vector stays cached.
	EmbeddingTTLSeconds int `yaml:"embedding_ttl_seconds"`
}

// ProvidersConfig declares which external capability backs each pipeline stage.
type ProvidersConfig struct {
	// Summarizer is the language model used by the taste profiler.
	Summarizer ProviderEntry `yaml:"summarizer"`

	// Reasoner is the language model used by the explanation generator.
	Reasoner ProviderEntry `yaml:"reasoner"`

	// Embeddings is the text-embedding backend.
	Embeddings ProviderEntry `yaml:"embeddings"`

	// GoogleBooksAPIKey optionally authenticates Google Books metadata lookups.
	GoogleBooksAPIKey string `yaml:"google_books_api_key"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "anthropic", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4-turbo", "text-embedding-3-small").
	Model string `yaml:"model"`
}

// AgentsConfig tunes the three-stage recommendation pipeline.
type AgentsConfig struct {
	// CandidateTopN caps how many candidates a single request may ask the
	// retriever for. Requests wanting more are clamped to this value.
	CandidateTopN int `yaml:"candidate_top_n"`

	// ExplanationTopN is how many top candidates receive LLM-written
	// explanations. Kept smaller than CandidateTopN to bound generation cost.
	ExplanationTopN int `yaml:"explanation_top_n"`
}

// ScraperConfig tunes the Goodreads review scraper.
type ScraperConfig struct {
	// RateLimitSeconds is the pause between page navigations.
	RateLimitSeconds float64 `yaml:"rate_limit_seconds"`

	// MaxReviews caps the number of reviews extracted per book.
	MaxReviews int `yaml:"max_reviews"`

	// TimeoutSeconds bounds a single headless page load.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Default values applied by [applyDefaults] when the corresponding YAML field
// is absent or zero.
const (
	DefaultListenAddr               = ":8080"
	DefaultEmbeddingDimensions      = 1536
	DefaultCacheMaxEntries          = 4096
	DefaultTasteProfileTTLSeconds   = 86400
	DefaultRecommendationTTLSeconds = 3600
	DefaultEmbeddingTTLSeconds      = 86400
	DefaultCandidateTopN            = 50
	DefaultExplanationTopN          = 10
	DefaultScraperRateLimitSeconds  = 2.0
	DefaultScraperMaxReviews        = 10
	DefaultScraperTimeoutSeconds    = 30
)

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Database.EmbeddingDimensions == 0 {
		cfg.Database.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.TasteProfileTTLSeconds == 0 {
		cfg.Cache.TasteProfileTTLSeconds = DefaultTasteProfileTTLSeconds
	}
	if cfg.Cache.RecommendationTTLSeconds == 0 {
		cfg.Cache.RecommendationTTLSeconds = DefaultRecommendationTTLSeconds
	}
	if cfg.Cache.EmbeddingTTLSeconds == 0 {
		cfg.Cache.EmbeddingTTLSeconds = DefaultEmbeddingTTLSeconds
	}
	if cfg.Agents.CandidateTopN == 0 {
		cfg.Agents.CandidateTopN = DefaultCandidateTopN
	}
	if cfg.Agents.ExplanationTopN == 0 {
		cfg.Agents.ExplanationTopN = DefaultExplanationTopN
	}
	if cfg.Scraper.RateLimitSeconds == 0 {
		cfg.Scraper.RateLimitSeconds = DefaultScraperRateLimitSeconds
	}
	if cfg.Scraper.MaxReviews == 0 {
		cfg.Scraper.MaxReviews = DefaultScraperMaxReviews
	}
	if cfg.Scraper.TimeoutSeconds == 0 {
		cfg.Scraper.TimeoutSeconds = DefaultScraperTimeoutSeconds
	}
}
