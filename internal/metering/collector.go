// Package metering tracks per-request latency, token usage, and estimated
// cost across the recommendation pipeline, and folds completed requests into
// a process-wide aggregate.
//
// A [Collector] belongs to exactly one in-flight request. Stages mutate it
// strictly sequentially, so it carries no internal locking; the [Aggregate]
// is shared across requests and synchronises itself.
package metering

import (
	"math"
	"time"
)

// TokenUsage records the accounting for a single model call.
type TokenUsage struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Collector accumulates metrics for one pipeline request.
// Create one with [NewCollector] at request start; read-only after the
// orchestrator finalises the response.
type Collector struct {
	requestID string
	startTime time.Time

	latencies map[string]float64 // stage name -> elapsed seconds
	timers    map[string]time.Time
	usages    []TokenUsage

	embeddingCacheHits   int
	embeddingCacheMisses int
}

// NewCollector creates a Collector tagged with requestID, with the wall clock
// started.
func NewCollector(requestID string) *Collector {
	return &Collector{
		requestID: requestID,
		startTime: time.Now(),
		latencies: make(map[string]float64),
		timers:    make(map[string]time.Time),
	}
}

// RequestID returns the opaque request identifier the collector was tagged with.
func (c *Collector) RequestID() string { return c.requestID }

// StartTimer begins a named stage timer. Starting an already-running timer
// restarts it.
func (c *Collector) StartTimer(name string) {
	c.timers[name] = time.Now()
}

// StopTimer ends a named stage timer, records the elapsed seconds, and returns
// them. Stopping a timer that was never started records nothing and returns 0.
func (c *Collector) StopTimer(name string) float64 {
	start, ok := c.timers[name]
	if !ok {
		return 0
	}
	delete(c.timers, name)
	elapsed := time.Since(start).Seconds()
	c.latencies[name] = elapsed
	return elapsed
}

// RecordTokenUsage adds the accounting for one model call, estimating its cost
// from the static rate table.
func (c *Collector) RecordTokenUsage(model string, promptTokens, completionTokens int) {
	c.usages = append(c.usages, TokenUsage{
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		CostUSD:          EstimateCost(model, promptTokens, completionTokens),
	})
}

// RecordEmbeddingHit counts a served-from-cache embedding lookup.
func (c *Collector) RecordEmbeddingHit() { c.embeddingCacheHits++ }

// RecordEmbeddingMiss counts an embedding lookup that required generation.
func (c *Collector) RecordEmbeddingMiss() { c.embeddingCacheMisses++ }

// TotalLatency returns seconds elapsed since the collector was created.
func (c *Collector) TotalLatency() float64 {
	return time.Since(c.startTime).Seconds()
}

// TotalTokens returns the sum of tokens across all recorded model calls.
func (c *Collector) TotalTokens() int {
	total := 0
	for _, u := range c.usages {
		total += u.TotalTokens
	}
	return total
}

// TotalCostUSD returns the summed estimated cost across all recorded calls.
func (c *Collector) TotalCostUSD() float64 {
	total := 0.0
	for _, u := range c.usages {
		total += u.CostUSD
	}
	return total
}

// Usages returns the recorded per-call token usages in recording order.
func (c *Collector) Usages() []TokenUsage { return c.usages }

// Summary is the JSON-ready snapshot of a completed request's metrics.
type Summary struct {
	RequestID            string             `json:"request_id"`
	TotalLatencySeconds  float64            `json:"total_latency_s"`
	Latencies            map[string]float64 `json:"latencies"`
	TotalTokens          int                `json:"total_tokens"`
	TotalCostUSD         float64            `json:"total_cost_usd"`
	TokenBreakdown       []TokenUsage       `json:"token_breakdown"`
	EmbeddingCacheHits   int                `json:"embedding_cache_hits"`
	EmbeddingCacheMisses int                `json:"embedding_cache_misses"`
}

// Summarize computes derived totals and returns the snapshot for the response
// body. Latencies are rounded to 3 decimal places, costs to 6.
func (c *Collector) Summarize() Summary {
	latencies := make(map[string]float64, len(c.latencies))
	for name, secs := range c.latencies {
		latencies[name] = round(secs, 3)
	}
	breakdown := make([]TokenUsage, len(c.usages))
	for i, u := range c.usages {
		u.CostUSD = round(u.CostUSD, 6)
		breakdown[i] = u
	}
	return Summary{
		RequestID:            c.requestID,
		TotalLatencySeconds:  round(c.TotalLatency(), 3),
		Latencies:            latencies,
		TotalTokens:          c.TotalTokens(),
		TotalCostUSD:         round(c.TotalCostUSD(), 6),
		TokenBreakdown:       breakdown,
		EmbeddingCacheHits:   c.embeddingCacheHits,
		EmbeddingCacheMisses: c.embeddingCacheMisses,
	}
}

// round rounds v to the given number of decimal places.
func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
