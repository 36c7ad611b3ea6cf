// Package agent implements the three-stage recommendation pipeline: taste
// profiling, candidate retrieval, and explanation generation. Each stage is
// an independent component sharing a per-request metering collector; the
// orchestrator subpackage wires them together.
package agent

import (
	"math"

	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/metering"
)

// FallbackExplanation is attached to a recommendation when the explainer
// produced nothing usable for that book.
const FallbackExplanation = "Recommended based on your taste profile."

// Stage timer names, visible in the per-request metrics summary.
const (
	StageProfiler  = "taste_profiler"
	StageRetriever = "candidate_retriever"
	StageExplainer = "explanation_generator"
)

// TasteProfile is the structured output of the profiling stage.
type TasteProfile struct {
	PreferredGenres  []string `json:"preferred_genres"`
	PreferredThemes  []string `json:"preferred_themes"`
	PreferredAuthors []string `json:"preferred_authors"`
	ReadingStyle     string   `json:"reading_style"`
	Summary          string   `json:"summary"`
}

// Candidate is a retrieved book with its similarity score in [0, 1]
// (1 − cosine distance; higher is closer).
type Candidate struct {
	Book  *catalog.Book
	Score float64
}

// RecommendationItem is one explained recommendation in the final response.
type RecommendationItem struct {
	Book        *catalog.Book `json:"book"`
	Score       float64       `json:"score"`
	Explanation string        `json:"explanation"`
}

// RecommendationResponse is the full pipeline output. Metrics describe the
// run that produced the recommendations; a cached response keeps the metrics
// of its original run.
type RecommendationResponse struct {
	Recommendations []RecommendationItem `json:"recommendations"`
	TasteProfile    *TasteProfile        `json:"taste_profile"`
	Metrics         metering.Summary     `json:"metrics"`
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
