// Package orchestrator runs the recommendation pipeline end to end: taste
// profiling, candidate retrieval, explanation generation, response assembly
// and caching, with per-request cost and latency metering throughout.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/liberhq/liber/internal/agent"
	"github.com/liberhq/liber/internal/cache"
	"github.com/liberhq/liber/internal/metering"
	"github.com/liberhq/liber/internal/observe"
)

// TasteProfiler is stage one. Satisfied by *agent.Profiler.
type TasteProfiler interface {
	Profile(ctx context.Context, favorites []string, meter *metering.Collector) (*agent.TasteProfile, error)
}

// CandidateRetriever is stage two. Satisfied by *agent.Retriever.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, profile *agent.TasteProfile, topN int, exclude []string, meter *metering.Collector) ([]agent.Candidate, error)
}

// ExplanationGenerator is stage three. Satisfied by *agent.Explainer.
type ExplanationGenerator interface {
	Explain(ctx context.Context, profile *agent.TasteProfile, candidates []agent.Candidate, meter *metering.Collector) (map[int64]string, error)
}

// Config collects the orchestrator's collaborators and tuning.
type Config struct {
	Profiler  TasteProfiler
	Retriever CandidateRetriever
	Explainer ExplanationGenerator
	Cache     cache.Cache

	// Aggregate receives completed request metrics. May be nil when
	// service-wide metering is not wanted.
	Aggregate *metering.Aggregate

	// Metrics receives per-stage latency histograms and cache-outcome
	// counters. May be nil.
	Metrics *observe.Metrics

	// CacheTTL bounds how long an assembled response is replayed.
	CacheTTL time.Duration

	// MaxCandidates caps the candidate count a single request may ask for.
	// Zero means no cap beyond the caller's validation.
	MaxCandidates int
}

// Orchestrator coordinates the three pipeline stages.
type Orchestrator struct {
	profiler      TasteProfiler
	retriever     CandidateRetriever
	explainer     ExplanationGenerator
	cache         cache.Cache
	aggregate     *metering.Aggregate
	metrics       *observe.Metrics
	cacheTTL      time.Duration
	maxCandidates int
}

// New creates an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		profiler:      cfg.Profiler,
		retriever:     cfg.Retriever,
		explainer:     cfg.Explainer,
		cache:         cfg.Cache,
		aggregate:     cfg.Aggregate,
		metrics:       cfg.Metrics,
		cacheTTL:      cfg.CacheTTL,
		maxCandidates: cfg.MaxCandidates,
	}
}

// Recommend runs the full pipeline for a set of favorite titles. An
// identical request within the cache TTL returns the stored response
// verbatim, including the metrics of the run that produced it, and performs
// no model or database calls. Profiling and retrieval failures abort the
// request and nothing partial is cached; an explanation failure degrades to
// fallback text, since by then the result set already exists.
func (o *Orchestrator) Recommend(ctx context.Context, favorites []string, count int) (*agent.RecommendationResponse, error) {
	requestID := uuid.NewString()[:8]

	if o.maxCandidates > 0 && count > o.maxCandidates {
		slog.Debug("candidate count capped", "requested", count, "cap", o.maxCandidates)
		count = o.maxCandidates
	}

	key := cache.RecommendationKey(favorites, count)
	if payload, ok := o.cache.Get(ctx, key); ok {
		var cached agent.RecommendationResponse
		if err := json.Unmarshal(payload, &cached); err == nil {
			slog.Info("recommendation cache hit", "request_id", requestID)
			if o.metrics != nil {
				o.metrics.RecordRecommendation(ctx, "hit")
			}
			return &cached, nil
		}
		o.cache.Delete(ctx, key)
	}

	slog.Info("recommendation pipeline start",
		"request_id", requestID, "books", favorites, "n", count)

	meter := metering.NewCollector(requestID)

	profile, err := o.profiler.Profile(ctx, favorites, meter)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: profiling stage: %w", err)
	}

	candidates, err := o.retriever.Retrieve(ctx, profile, count, favorites, meter)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: retrieval stage: %w", err)
	}

	explanations, err := o.explainer.Explain(ctx, profile, candidates, meter)
	if err != nil {
		slog.Warn("explanation stage failed, serving fallbacks",
			"request_id", requestID, "error", err)
		explanations = nil
	}

	items := make([]agent.RecommendationItem, 0, len(candidates))
	for _, c := range candidates {
		explanation, ok := explanations[c.Book.ID]
		if !ok {
			explanation = agent.FallbackExplanation
		}
		items = append(items, agent.RecommendationItem{
			Book:        c.Book,
			Score:       round4(c.Score),
			Explanation: explanation,
		})
	}

	response := &agent.RecommendationResponse{
		Recommendations: items,
		TasteProfile:    profile,
		Metrics:         meter.Summarize(),
	}

	if payload, err := json.Marshal(response); err == nil {
		o.cache.Set(ctx, key, payload, o.cacheTTL)
	}
	if o.aggregate != nil {
		o.aggregate.Record(meter)
	}
	o.recordRunMetrics(ctx, response.Metrics)

	slog.Info("recommendation pipeline complete",
		"request_id", requestID,
		"num_results", len(items),
		"latency_s", response.Metrics.TotalLatencySeconds,
		"tokens", response.Metrics.TotalTokens)

	return response, nil
}

// recordRunMetrics feeds one completed run into the process-wide telemetry:
// per-stage and pipeline latency histograms, per-model token counters, and
// the cache-miss recommendation counter.
func (o *Orchestrator) recordRunMetrics(ctx context.Context, summary metering.Summary) {
	if o.metrics == nil {
		return
	}
	if secs, ok := summary.Latencies[agent.StageProfiler]; ok {
		o.metrics.ProfileDuration.Record(ctx, secs)
	}
	if secs, ok := summary.Latencies[agent.StageRetriever]; ok {
		o.metrics.RetrievalDuration.Record(ctx, secs)
	}
	if secs, ok := summary.Latencies[agent.StageExplainer]; ok {
		o.metrics.ExplanationDuration.Record(ctx, secs)
	}
	o.metrics.PipelineDuration.Record(ctx, summary.TotalLatencySeconds)
	for _, usage := range summary.TokenBreakdown {
		o.metrics.RecordTokens(ctx, usage.Model, int64(usage.TotalTokens))
	}
	o.metrics.RecordRecommendation(ctx, "miss")
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
