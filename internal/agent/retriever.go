package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/metering"
)

// QueryEmbedder turns ad-hoc text into a query vector. Satisfied by
// *embedding.Service.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string, meter *metering.Collector) ([]float32, error)
}

// Retriever is the second pipeline stage: it embeds the taste profile and
// finds the nearest catalog books by cosine distance.
type Retriever struct {
	embedder QueryEmbedder
	store    catalog.Store
	index    catalog.VectorIndex
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder QueryEmbedder, store catalog.Store, index catalog.VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, store: store, index: index}
}

// Retrieve returns up to topN candidates matching the profile, skipping any
// book whose title appears in exclude. The index is over-fetched by
// len(exclude) so exclusions do not starve the result.
func (r *Retriever) Retrieve(ctx context.Context, profile *TasteProfile, topN int, exclude []string, meter *metering.Collector) ([]Candidate, error) {
	meter.StartTimer(StageRetriever)
	defer meter.StopTimer(StageRetriever)

	vec, err := r.embedder.EmbedQuery(ctx, ProfileText(profile), meter)
	if err != nil {
		return nil, fmt.Errorf("agent: embed taste profile: %w", err)
	}

	neighbors, err := r.index.Nearest(ctx, vec, topN+len(exclude))
	if err != nil {
		return nil, fmt.Errorf("agent: vector search: %w", err)
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, title := range exclude {
		excluded[normalizeTitle(title)] = struct{}{}
	}

	candidates := make([]Candidate, 0, topN)
	for _, n := range neighbors {
		if len(candidates) >= topN {
			break
		}
		book, err := r.store.LoadWithReviews(ctx, n.BookID)
		if err != nil {
			slog.Warn("candidate load failed", "book_id", n.BookID, "error", err)
			continue
		}
		if book == nil {
			continue
		}
		if _, skip := excluded[normalizeTitle(book.Title)]; skip {
			continue
		}
		candidates = append(candidates, Candidate{Book: book, Score: 1 - n.Distance})
	}

	slog.Info("candidates retrieved", "count", len(candidates), "top_n", topN)
	return candidates, nil
}

// ProfileText renders a taste profile as the text that gets embedded for
// retrieval.
func ProfileText(profile *TasteProfile) string {
	return fmt.Sprintf("Genres: %s. Themes: %s. Authors: %s. %s",
		strings.Join(profile.PreferredGenres, ", "),
		strings.Join(profile.PreferredThemes, ", "),
		strings.Join(profile.PreferredAuthors, ", "),
		profile.Summary,
	)
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
