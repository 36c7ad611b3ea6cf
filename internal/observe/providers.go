package observe

import (
	"context"

	"github.com/liberhq/liber/pkg/provider/embeddings"
	"github.com/liberhq/liber/pkg/provider/llm"
)

// instrumentedLLM decorates an llm.Provider with request and error counters.
type instrumentedLLM struct {
	inner   llm.Provider
	metrics *Metrics
}

// InstrumentLLM returns a provider that records every completion call to
// [Metrics.ProviderRequests] (kind "llm") and failures to
// [Metrics.ProviderErrors], then delegates to p.
func InstrumentLLM(p llm.Provider, m *Metrics) llm.Provider {
	return &instrumentedLLM{inner: p, metrics: m}
}

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.inner.Complete(ctx, req)
	p.metrics.RecordProviderRequest(ctx, p.inner.ModelID(), "llm", statusOf(err))
	if err != nil {
		p.metrics.RecordProviderError(ctx, p.inner.ModelID(), "llm")
	}
	return resp, err
}

func (p *instrumentedLLM) ModelID() string { return p.inner.ModelID() }

// instrumentedEmbeddings decorates an embeddings.Provider the same way under
// kind "embeddings".
type instrumentedEmbeddings struct {
	inner   embeddings.Provider
	metrics *Metrics
}

// InstrumentEmbeddings returns a provider that records every embedding call
// to [Metrics.ProviderRequests] (kind "embeddings") and failures to
// [Metrics.ProviderErrors], then delegates to p.
func InstrumentEmbeddings(p embeddings.Provider, m *Metrics) embeddings.Provider {
	return &instrumentedEmbeddings{inner: p, metrics: m}
}

func (p *instrumentedEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.inner.Embed(ctx, text)
	p.record(ctx, err)
	return vec, err
}

func (p *instrumentedEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.inner.EmbedBatch(ctx, texts)
	p.record(ctx, err)
	return vecs, err
}

func (p *instrumentedEmbeddings) Dimensions() int { return p.inner.Dimensions() }

func (p *instrumentedEmbeddings) ModelID() string { return p.inner.ModelID() }

func (p *instrumentedEmbeddings) record(ctx context.Context, err error) {
	p.metrics.RecordProviderRequest(ctx, p.inner.ModelID(), "embeddings", statusOf(err))
	if err != nil {
		p.metrics.RecordProviderError(ctx, p.inner.ModelID(), "embeddings")
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
