package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/liberhq/liber/internal/metering"
	"github.com/liberhq/liber/pkg/provider/llm"
)

const explanationPrompt = `Given this reader's taste profile and candidate books, write a concise 2-3 sentence explanation for each book explaining why it's a good match.

Taste Profile:
%s

Candidate Books:
%s

Return a JSON object with book titles as keys and explanation strings as values.
Return ONLY valid JSON, no other text.`

const explainerSystemPrompt = "You are a book recommendation explainer. Return only valid JSON."

// Limits applied to each candidate in the explanation prompt.
const (
	explainerMaxSubjects    = 5
	explainerMaxDescription = 200

	explainerTemperature = 0.5
	explainerMaxTokens   = 1000
)

// Explainer is the third pipeline stage: it asks an LLM to justify each of
// the leading candidates against the taste profile.
type Explainer struct {
	llm  llm.Provider
	topN int
}

// NewExplainer creates an Explainer that explains at most topN candidates.
func NewExplainer(provider llm.Provider, topN int) *Explainer {
	return &Explainer{llm: provider, topN: topN}
}

// promptProfile is the compact taste profile sent to the explanation model.
type promptProfile struct {
	Genres  []string `json:"genres"`
	Themes  []string `json:"themes"`
	Authors []string `json:"authors"`
	Summary string   `json:"summary"`
}

// promptCandidate is one candidate as presented to the explanation model.
type promptCandidate struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Subjects    []string `json:"subjects"`
	Description string   `json:"description"`
	Score       float64  `json:"score"`
}

// Explain returns explanations keyed by book ID for the leading candidates.
// The model answers keyed by title; answers are reconciled back to IDs with
// an exact case-insensitive match first and a substring match second. A
// failed generation call or malformed model response degrades to fallback
// explanations for every candidate rather than failing the pipeline;
// explanations are enrichment, never a reason to lose the result set.
func (e *Explainer) Explain(ctx context.Context, profile *TasteProfile, candidates []Candidate, meter *metering.Collector) (map[int64]string, error) {
	if len(candidates) == 0 {
		return map[int64]string{}, nil
	}

	meter.StartTimer(StageExplainer)
	defer meter.StopTimer(StageExplainer)

	top := candidates
	if len(top) > e.topN {
		top = top[:e.topN]
	}

	tasteJSON, err := json.Marshal(promptProfile{
		Genres:  orEmpty(profile.PreferredGenres),
		Themes:  orEmpty(profile.PreferredThemes),
		Authors: orEmpty(profile.PreferredAuthors),
		Summary: profile.Summary,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: encode taste profile: %w", err)
	}

	promptCandidates := make([]promptCandidate, len(top))
	for i, c := range top {
		promptCandidates[i] = promptCandidate{
			Title:       c.Book.Title,
			Authors:     orEmpty(c.Book.Authors),
			Subjects:    capSlice(c.Book.Subjects, explainerMaxSubjects),
			Description: truncate(c.Book.Description, explainerMaxDescription),
			Score:       roundTo(c.Score, 3),
		}
	}
	candidatesJSON, err := json.Marshal(promptCandidates)
	if err != nil {
		return nil, fmt.Errorf("agent: encode candidates: %w", err)
	}

	var answers []titledExplanation
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: explainerSystemPrompt,
		UserPayload:  fmt.Sprintf(explanationPrompt, tasteJSON, candidatesJSON),
		JSONResponse: true,
		Temperature:  explainerTemperature,
		MaxTokens:    explainerMaxTokens,
	})
	if err != nil {
		slog.Warn("explanation generation failed, using fallbacks", "error", err)
	} else {
		meter.RecordTokenUsage(e.llm.ModelID(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		answers, err = decodeExplanations(resp.Content)
		if err != nil {
			slog.Warn("explanation response not valid JSON, using fallbacks", "error", err)
			answers = nil
		}
	}

	explanations := make(map[int64]string, len(top))
	for _, c := range top {
		explanation := matchExplanation(answers, c.Book.Title)
		if explanation == "" {
			explanation = FallbackExplanation
		}
		explanations[c.Book.ID] = explanation
	}

	slog.Info("explanations generated", "count", len(explanations))
	return explanations, nil
}

// titledExplanation is one key/value pair of the model's answer, kept in the
// order the model emitted it.
type titledExplanation struct {
	title string
	text  string
}

// decodeExplanations parses the model's JSON object while preserving key
// order, which a plain map unmarshal would discard.
func decodeExplanations(content string) ([]titledExplanation, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	var answers []titledExplanation
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		title, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string key, got %v", keyTok)
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return nil, err
		}
		answers = append(answers, titledExplanation{title: title, text: text})
	}
	return answers, nil
}

// matchExplanation finds the model's answer for a book title: exact
// case-insensitive match first, then bidirectional substring match. Models
// routinely echo titles with subtitles added or dropped. Within each pass the
// first answer in the model's key order wins, so reconciliation is
// deterministic even when several keys would match.
func matchExplanation(answers []titledExplanation, bookTitle string) string {
	want := normalizeTitle(bookTitle)
	for _, a := range answers {
		if normalizeTitle(a.title) == want {
			return a.text
		}
	}
	lowerBook := strings.ToLower(bookTitle)
	for _, a := range answers {
		got := strings.ToLower(a.title)
		if strings.Contains(lowerBook, got) || strings.Contains(got, lowerBook) {
			return a.text
		}
	}
	return ""
}
