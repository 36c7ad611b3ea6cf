// Package embedding provides the embedding service used by the retrieval
// stage and catalog ingestion: text-to-vector generation with a two-level
// lookaside (result cache, then the catalog's embedding table) and a hard
// dimension invariant.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/liberhq/liber/internal/cache"
	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/metering"
	"github.com/liberhq/liber/pkg/provider/embeddings"
)

// Limits applied when composing a book's embedding text. Keeping the text
// compact bounds token spend without losing the signal that matters for
// similarity.
const (
	maxSubjects         = 10
	maxDescriptionChars = 500
	maxReviews          = 5
	maxReviewChars      = 300
)

// Service generates and caches embedding vectors.
//
// Every vector passing through the service must have the configured dimension;
// a mismatch is a hard error, never a silent truncation, because a single
// wrong-width vector poisons the whole index.
type Service struct {
	provider   embeddings.Provider
	store      catalog.Store
	cache      cache.Cache
	dimensions int
	cacheTTL   time.Duration
}

// NewService creates a Service. dimensions fixes the expected vector width;
// cacheTTL bounds how long per-book vectors stay in the result cache.
func NewService(provider embeddings.Provider, store catalog.Store, c cache.Cache, dimensions int, cacheTTL time.Duration) *Service {
	return &Service{
		provider:   provider,
		store:      store,
		cache:      c,
		dimensions: dimensions,
		cacheTTL:   cacheTTL,
	}
}

// Dimensions returns the fixed vector width the service enforces.
func (s *Service) Dimensions() int { return s.dimensions }

// BuildText composes the text embedded for a book: title, authors, leading
// subjects, truncated description, and review excerpts when present.
func BuildText(book *catalog.Book) string {
	parts := []string{"Title: " + book.Title}
	if len(book.Authors) > 0 {
		parts = append(parts, "Authors: "+strings.Join(book.Authors, ", "))
	}
	if len(book.Subjects) > 0 {
		subjects := book.Subjects
		if len(subjects) > maxSubjects {
			subjects = subjects[:maxSubjects]
		}
		parts = append(parts, "Subjects: "+strings.Join(subjects, ", "))
	}
	if book.Description != "" {
		parts = append(parts, "Description: "+truncate(book.Description, maxDescriptionChars))
	}
	if len(book.Reviews) > 0 {
		reviews := book.Reviews
		if len(reviews) > maxReviews {
			reviews = reviews[:maxReviews]
		}
		excerpts := make([]string, len(reviews))
		for i, r := range reviews {
			excerpts[i] = truncate(r.ReviewText, maxReviewChars)
		}
		parts = append(parts, "Reviews: "+strings.Join(excerpts, " | "))
	}
	return strings.Join(parts, " ")
}

// EmbedQuery generates a vector for ad-hoc query text (e.g., a rendered taste
// profile). Query vectors are never cached: the retrieval cache lives one
// level up, keyed on the favorite titles.
func (s *Service) EmbedQuery(ctx context.Context, text string, meter *metering.Collector) ([]float32, error) {
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed query: %w", err)
	}
	if err := s.checkDimension(vec); err != nil {
		return nil, err
	}
	if meter != nil {
		meter.RecordTokenUsage(s.provider.ModelID(), approximateTokens(text), 0)
	}
	return vec, nil
}

// GetOrCreate returns the embedding for a book, consulting the result cache,
// then the catalog's embedding table, and only then the provider. Fresh
// vectors are written back to both levels.
func (s *Service) GetOrCreate(ctx context.Context, book *catalog.Book, meter *metering.Collector) ([]float32, error) {
	key := cache.EmbeddingKey(book.ID)
	if payload, ok := s.cache.Get(ctx, key); ok {
		if vec, err := decodeVector(payload); err == nil {
			if meter != nil {
				meter.RecordEmbeddingHit()
			}
			return vec, nil
		}
		// Undecodable payloads are dropped and treated as a miss.
		s.cache.Delete(ctx, key)
	}

	stored, err := s.store.LoadEmbedding(ctx, book.ID)
	if err != nil {
		return nil, fmt.Errorf("embedding: load stored vector: %w", err)
	}
	if stored != nil {
		if err := s.checkDimension(stored); err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, encodeVector(stored), s.cacheTTL)
		if meter != nil {
			meter.RecordEmbeddingHit()
		}
		return stored, nil
	}

	if meter != nil {
		meter.RecordEmbeddingMiss()
	}
	text := BuildText(book)
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed book %d: %w", book.ID, err)
	}
	if err := s.checkDimension(vec); err != nil {
		return nil, err
	}
	if meter != nil {
		meter.RecordTokenUsage(s.provider.ModelID(), approximateTokens(text), 0)
	}

	if err := s.store.SaveEmbedding(ctx, book.ID, vec, text); err != nil {
		return nil, fmt.Errorf("embedding: persist vector for book %d: %w", book.ID, err)
	}
	s.cache.Set(ctx, key, encodeVector(vec), s.cacheTTL)
	return vec, nil
}

// CreateBatch embeds every book that has no stored vector in a single
// provider call, persisting each result and warming the cache. Books that
// already have a vector are skipped. Returns the number of vectors created.
func (s *Service) CreateBatch(ctx context.Context, books []*catalog.Book) (int, error) {
	var (
		pending []*catalog.Book
		texts   []string
	)
	for _, book := range books {
		stored, err := s.store.LoadEmbedding(ctx, book.ID)
		if err != nil {
			return 0, fmt.Errorf("embedding: load stored vector for book %d: %w", book.ID, err)
		}
		if stored != nil {
			continue
		}
		pending = append(pending, book)
		texts = append(texts, BuildText(book))
	}
	if len(pending) == 0 {
		return 0, nil
	}

	vecs, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding: embed batch of %d: %w", len(texts), err)
	}
	for i, vec := range vecs {
		if err := s.checkDimension(vec); err != nil {
			return i, err
		}
		book := pending[i]
		if err := s.store.SaveEmbedding(ctx, book.ID, vec, texts[i]); err != nil {
			return i, fmt.Errorf("embedding: persist vector for book %d: %w", book.ID, err)
		}
		s.cache.Set(ctx, cache.EmbeddingKey(book.ID), encodeVector(vec), s.cacheTTL)
	}
	return len(pending), nil
}

// checkDimension enforces the index-wide dimension invariant.
func (s *Service) checkDimension(vec []float32) error {
	if len(vec) != s.dimensions {
		return fmt.Errorf("embedding: dimension mismatch: got %d, index requires %d", len(vec), s.dimensions)
	}
	return nil
}

// vectorPayload is the cache serialisation envelope for a vector.
type vectorPayload struct {
	Embedding []float32 `json:"embedding"`
}

func encodeVector(vec []float32) []byte {
	payload, err := json.Marshal(vectorPayload{Embedding: vec})
	if err != nil {
		// A float slice always marshals; log-and-continue keeps the cache optional.
		slog.Warn("embedding: encode vector for cache", "err", err)
		return nil
	}
	return payload
}

func decodeVector(payload []byte) ([]float32, error) {
	var p vectorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return p.Embedding, nil
}

// approximateTokens estimates token spend for embedding input at ~4 chars per
// token. Embedding responses do not carry usage through every backend, so the
// meter records an approximation rather than nothing.
func approximateTokens(text string) int {
	return (len(text) + 3) / 4
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
