package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/liberhq/liber/internal/cache"
	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/metadata"
	"github.com/liberhq/liber/internal/metering"
	"github.com/liberhq/liber/pkg/provider/llm"
)

const tasteProfilePrompt = `Analyze these favorite books and create a concise taste profile.

Books:
%s

Return a JSON object with exactly these fields:
- preferred_genres: list of 3-5 genres
- preferred_themes: list of 3-5 themes
- preferred_authors: list of author names from the input
- reading_style: one sentence describing reading preferences
- summary: 2-3 sentence summary of overall taste

Return ONLY valid JSON, no other text.`

const profilerSystemPrompt = "You are a book taste analyst. Return only valid JSON."

// Limits applied to each resolved book in the profiling prompt.
const (
	profilerMaxSubjects    = 10
	profilerMaxDescription = 300

	profilerTemperature = 0.3
	profilerMaxTokens   = 500
)

// MetadataResolver looks up a single external record for a title. Satisfied
// by *metadata.Resolver.
type MetadataResolver interface {
	Resolve(ctx context.Context, query string) *metadata.ExternalRecord
}

// Profiler is the first pipeline stage: it turns a list of favorite titles
// into a structured [TasteProfile] via an LLM, resolving each title against
// the catalog first and external metadata second.
type Profiler struct {
	llm      llm.Provider
	store    catalog.Store
	resolver MetadataResolver
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewProfiler creates a Profiler. resolver may be nil, in which case
// unknown titles fall through to bare stubs.
func NewProfiler(provider llm.Provider, store catalog.Store, resolver MetadataResolver, c cache.Cache, cacheTTL time.Duration) *Profiler {
	return &Profiler{
		llm:      provider,
		store:    store,
		resolver: resolver,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

// promptBook is a book as presented to the profiling model.
type promptBook struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Subjects    []string `json:"subjects"`
	Description string   `json:"description"`
}

// Profile generates a taste profile for the given favorite titles. Profiles
// are cached per title set; a cache hit costs no model call.
func (p *Profiler) Profile(ctx context.Context, favorites []string, meter *metering.Collector) (*TasteProfile, error) {
	key := cache.TasteProfileKey(favorites)
	if payload, ok := p.cache.Get(ctx, key); ok {
		var profile TasteProfile
		if err := json.Unmarshal(payload, &profile); err == nil {
			slog.Info("taste profile cache hit", "books", favorites)
			return &profile, nil
		}
		p.cache.Delete(ctx, key)
	}

	meter.StartTimer(StageProfiler)
	defer meter.StopTimer(StageProfiler)

	books := make([]promptBook, 0, len(favorites))
	for _, title := range favorites {
		books = append(books, p.resolveTitle(ctx, title))
	}

	booksJSON, err := json.MarshalIndent(books, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("agent: encode profile prompt: %w", err)
	}

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: profilerSystemPrompt,
		UserPayload:  fmt.Sprintf(tasteProfilePrompt, booksJSON),
		JSONResponse: true,
		Temperature:  profilerTemperature,
		MaxTokens:    profilerMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: taste profile generation: %w", err)
	}
	meter.RecordTokenUsage(p.llm.ModelID(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	var profile TasteProfile
	if err := json.Unmarshal([]byte(resp.Content), &profile); err != nil {
		return nil, fmt.Errorf("agent: parse taste profile: %w", err)
	}

	if payload, err := json.Marshal(&profile); err == nil {
		p.cache.Set(ctx, key, payload, p.cacheTTL)
	}

	slog.Info("taste profile generated", "books", favorites)
	return &profile, nil
}

// resolveTitle builds the prompt entry for one favorite title: catalog
// lookup first, external metadata second, bare stub last. A title that
// resolves nowhere still contributes its name to the prompt.
func (p *Profiler) resolveTitle(ctx context.Context, title string) promptBook {
	book, err := p.store.FindByTitleSubstring(ctx, title)
	if err != nil {
		slog.Warn("catalog lookup failed during profiling", "title", title, "error", err)
	}
	if book != nil {
		return promptBook{
			Title:       book.Title,
			Authors:     orEmpty(book.Authors),
			Subjects:    capSlice(book.Subjects, profilerMaxSubjects),
			Description: truncate(book.Description, profilerMaxDescription),
		}
	}

	if p.resolver != nil {
		if rec := p.resolver.Resolve(ctx, title); rec != nil {
			return promptBook{
				Title:       rec.Title,
				Authors:     orEmpty(rec.Authors),
				Subjects:    capSlice(rec.Subjects, profilerMaxSubjects),
				Description: truncate(rec.Description, profilerMaxDescription),
			}
		}
	}

	return promptBook{Title: title, Authors: []string{}, Subjects: []string{}}
}

// orEmpty keeps JSON output as [] instead of null for absent lists.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func capSlice(s []string, max int) []string {
	if s == nil {
		return []string{}
	}
	if len(s) > max {
		return s[:max]
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
