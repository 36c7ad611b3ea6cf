package metering

import (
	"math"
	"testing"
	"time"
)

func TestEstimateCost_KnownModels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model      string
		prompt     int
		completion int
		want       float64
	}{
		{"gpt-4-turbo", 1000, 1000, 0.01 + 0.03},
		{"gpt-3.5-turbo", 2000, 1000, 0.001 + 0.0015},
		{"text-embedding-3-small", 1000, 0, 0.00002},
		{"some-unknown-model", 1000, 1000, 0.001 + 0.002},
	}
	for _, tc := range tests {
		got := EstimateCost(tc.model, tc.prompt, tc.completion)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("EstimateCost(%q, %d, %d) = %v, want %v",
				tc.model, tc.prompt, tc.completion, got, tc.want)
		}
	}
}

func TestEstimateCost_Linear(t *testing.T) {
	t.Parallel()

	single := EstimateCost("gpt-4-turbo", 500, 200)
	double := EstimateCost("gpt-4-turbo", 1000, 400)
	if math.Abs(double-2*single) > 1e-12 {
		t.Errorf("cost not linear: 2*%v != %v", single, double)
	}
}

func TestCollector_Timers(t *testing.T) {
	t.Parallel()

	c := NewCollector("req1")
	c.StartTimer("stage")
	time.Sleep(5 * time.Millisecond)
	elapsed := c.StopTimer("stage")

	if elapsed <= 0 {
		t.Errorf("elapsed = %v, want > 0", elapsed)
	}
	if got := c.latencies["stage"]; got != elapsed {
		t.Errorf("recorded latency = %v, want %v", got, elapsed)
	}
}

func TestCollector_StopUnknownTimer(t *testing.T) {
	t.Parallel()

	c := NewCollector("req1")
	if got := c.StopTimer("never-started"); got != 0 {
		t.Errorf("StopTimer = %v, want 0", got)
	}
	if len(c.latencies) != 0 {
		t.Errorf("latencies recorded for never-started timer: %v", c.latencies)
	}
}

func TestCollector_TokenTotals(t *testing.T) {
	t.Parallel()

	c := NewCollector("req1")
	c.RecordTokenUsage("gpt-4-turbo", 1000, 500)
	c.RecordTokenUsage("text-embedding-3-small", 200, 0)

	if got, want := c.TotalTokens(), 1700; got != want {
		t.Errorf("TotalTokens = %d, want %d", got, want)
	}

	wantCost := EstimateCost("gpt-4-turbo", 1000, 500) + EstimateCost("text-embedding-3-small", 200, 0)
	if got := c.TotalCostUSD(); math.Abs(got-wantCost) > 1e-12 {
		t.Errorf("TotalCostUSD = %v, want %v", got, wantCost)
	}
}

func TestCollector_Summarize(t *testing.T) {
	t.Parallel()

	c := NewCollector("abc12345")
	c.RecordTokenUsage("gpt-4-turbo", 100, 50)
	c.RecordEmbeddingHit()
	c.RecordEmbeddingHit()
	c.RecordEmbeddingMiss()
	c.StartTimer("stage")
	c.StopTimer("stage")

	s := c.Summarize()
	if s.RequestID != "abc12345" {
		t.Errorf("RequestID = %q, want %q", s.RequestID, "abc12345")
	}
	if s.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", s.TotalTokens)
	}
	if s.EmbeddingCacheHits != 2 || s.EmbeddingCacheMisses != 1 {
		t.Errorf("cache counters = %d/%d, want 2/1", s.EmbeddingCacheHits, s.EmbeddingCacheMisses)
	}
	if _, ok := s.Latencies["stage"]; !ok {
		t.Error("stage latency missing from summary")
	}
	if len(s.TokenBreakdown) != 1 {
		t.Fatalf("TokenBreakdown length = %d, want 1", len(s.TokenBreakdown))
	}
}

func TestAggregate_Empty(t *testing.T) {
	t.Parallel()

	s := NewAggregate().Summarize()
	if s.TotalRequests != 0 {
		t.Errorf("TotalRequests = %d, want 0", s.TotalRequests)
	}
	if s.AvgLatencySeconds != 0 {
		t.Errorf("AvgLatencySeconds = %v, want 0", s.AvgLatencySeconds)
	}
}

func TestAggregate_Record(t *testing.T) {
	t.Parallel()

	a := NewAggregate()

	c1 := NewCollector("r1")
	c1.RecordTokenUsage("gpt-4-turbo", 1000, 500)
	a.Record(c1)

	c2 := NewCollector("r2")
	c2.RecordTokenUsage("gpt-4-turbo", 500, 0)
	c2.RecordTokenUsage("text-embedding-3-small", 100, 0)
	a.Record(c2)

	s := a.Summarize()
	if s.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", s.TotalRequests)
	}
	if s.TotalTokens != 2100 {
		t.Errorf("TotalTokens = %d, want 2100", s.TotalTokens)
	}
	if got := s.ModelUsage["gpt-4-turbo"]; got != 2000 {
		t.Errorf("gpt-4-turbo usage = %d, want 2000", got)
	}
	if got := s.ModelUsage["text-embedding-3-small"]; got != 100 {
		t.Errorf("embedding usage = %d, want 100", got)
	}
}
