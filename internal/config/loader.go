package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Database.DSN == "" {
		slog.Warn("database.dsn is empty; the catalog store and vector index will be unavailable")
	}
	if cfg.Database.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("database.embedding_dimensions %d must be positive", cfg.Database.EmbeddingDimensions))
	}

	validateProviderName("llm", "providers.summarizer", cfg.Providers.Summarizer.Name)
	validateProviderName("llm", "providers.reasoner", cfg.Providers.Reasoner.Name)
	validateProviderName("embeddings", "providers.embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.Summarizer.Name != "" && cfg.Providers.Summarizer.Model == "" {
		errs = append(errs, fmt.Errorf("providers.summarizer.model is required when a summarizer provider is configured"))
	}
	if cfg.Providers.Reasoner.Name != "" && cfg.Providers.Reasoner.Model == "" {
		errs = append(errs, fmt.Errorf("providers.reasoner.model is required when a reasoner provider is configured"))
	}

	if cfg.Cache.TasteProfileTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("cache.taste_profile_ttl_seconds %d must not be negative", cfg.Cache.TasteProfileTTLSeconds))
	}
	if cfg.Cache.RecommendationTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("cache.recommendation_ttl_seconds %d must not be negative", cfg.Cache.RecommendationTTLSeconds))
	}

	if cfg.Agents.CandidateTopN < 0 {
		errs = append(errs, fmt.Errorf("agents.candidate_top_n %d must be positive", cfg.Agents.CandidateTopN))
	}
	if cfg.Agents.ExplanationTopN > cfg.Agents.CandidateTopN {
		slog.Warn("agents.explanation_top_n exceeds candidate_top_n; every candidate will be explained",
			"explanation_top_n", cfg.Agents.ExplanationTopN,
			"candidate_top_n", cfg.Agents.CandidateTopN,
		)
	}

	if cfg.Scraper.RateLimitSeconds < 0 {
		errs = append(errs, fmt.Errorf("scraper.rate_limit_seconds %.2f must not be negative", cfg.Scraper.RateLimitSeconds))
	}

	return errors.Join(errs...)
}

// validateProviderName warns when a provider name is set but not recognised.
// Unknown names are not fatal so that new backends can be tried without a
// loader change.
func validateProviderName(kind, field, name string) {
	if name == "" {
		return
	}
	for _, valid := range ValidProviderNames[kind] {
		if name == valid {
			return
		}
	}
	slog.Warn("unrecognised provider name",
		"field", field,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
