package metering

import "sync"

// Aggregate folds completed request collectors into monotonically increasing
// process-wide counters. It is injected at process start rather than held as
// package state so tests and multi-tenant embeddings can isolate their totals.
//
// Aggregate is safe for concurrent use.
type Aggregate struct {
	mu sync.Mutex

	totalRequests int64
	totalTokens   int64
	totalCostUSD  float64
	totalLatency  float64
	modelTokens   map[string]int64
}

// NewAggregate creates an empty Aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{modelTokens: make(map[string]int64)}
}

// Record folds a completed request's collector into the running totals.
func (a *Aggregate) Record(c *Collector) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRequests++
	a.totalTokens += int64(c.TotalTokens())
	a.totalCostUSD += c.TotalCostUSD()
	a.totalLatency += c.TotalLatency()
	for _, u := range c.Usages() {
		a.modelTokens[u.Model] += int64(u.TotalTokens)
	}
}

// AggregateSummary is the JSON-ready snapshot of the process-wide totals.
type AggregateSummary struct {
	TotalRequests     int64            `json:"total_requests"`
	TotalTokens       int64            `json:"total_tokens"`
	TotalCostUSD      float64          `json:"total_cost_usd"`
	AvgLatencySeconds float64          `json:"avg_latency_s"`
	ModelUsage        map[string]int64 `json:"model_usage"`
}

// Summarize returns a copy of the running totals. Average latency divides by
// the request count floored at 1 so an empty aggregate reads as zero.
func (a *Aggregate) Summarize() AggregateSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	requests := a.totalRequests
	if requests < 1 {
		requests = 1
	}
	usage := make(map[string]int64, len(a.modelTokens))
	for model, tokens := range a.modelTokens {
		usage[model] = tokens
	}
	return AggregateSummary{
		TotalRequests:     a.totalRequests,
		TotalTokens:       a.totalTokens,
		TotalCostUSD:      round(a.totalCostUSD, 6),
		AvgLatencySeconds: round(a.totalLatency/float64(requests), 3),
		ModelUsage:        usage,
	}
}
