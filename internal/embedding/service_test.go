package embedding

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/liberhq/liber/internal/cache"
	"github.com/liberhq/liber/internal/catalog"
	catalogmock "github.com/liberhq/liber/internal/catalog/mock"
	"github.com/liberhq/liber/internal/metering"
	embedmock "github.com/liberhq/liber/pkg/provider/embeddings/mock"
)

func newTestService(provider *embedmock.Provider, store *catalogmock.Store) (*Service, *cache.Memory) {
	c := cache.NewMemory(16)
	return NewService(provider, store, c, 3, time.Hour), c
}

func testBook() *catalog.Book {
	return &catalog.Book{ID: 7, Title: "Dune", Authors: []string{"Frank Herbert"}}
}

func TestBuildText(t *testing.T) {
	book := &catalog.Book{
		Title:       "Dune",
		Authors:     []string{"Frank Herbert"},
		Subjects:    []string{"Science fiction", "Ecology"},
		Description: strings.Repeat("d", 600),
		Reviews: []catalog.Review{
			{ReviewText: "A masterpiece of world building."},
		},
	}

	text := BuildText(book)
	if !strings.HasPrefix(text, "Title: Dune") {
		t.Errorf("text should start with the title, got %q", text[:40])
	}
	if !strings.Contains(text, "Authors: Frank Herbert") {
		t.Error("missing authors section")
	}
	if !strings.Contains(text, "Subjects: Science fiction, Ecology") {
		t.Error("missing subjects section")
	}
	if strings.Contains(text, strings.Repeat("d", 501)) {
		t.Error("description not truncated to the configured limit")
	}
	if !strings.Contains(text, "Reviews: A masterpiece") {
		t.Error("missing reviews section")
	}
}

func TestBuildText_MinimalBook(t *testing.T) {
	text := BuildText(&catalog.Book{Title: "Dune"})
	if text != "Title: Dune" {
		t.Errorf("text = %q, want only the title section", text)
	}
}

func TestGetOrCreate_ProviderPath(t *testing.T) {
	provider := &embedmock.Provider{EmbedResult: []float32{1, 2, 3}, ModelIDValue: "text-embedding-3-small"}
	store := &catalogmock.Store{}
	svc, c := newTestService(provider, store)
	meter := metering.NewCollector("test")

	vec, err := svc.GetOrCreate(context.Background(), testBook(), meter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(vec))
	}
	if len(provider.EmbedCalls) != 1 {
		t.Errorf("provider called %d times, want 1", len(provider.EmbedCalls))
	}
	if store.Embeddings[7] == nil {
		t.Error("vector not written back to the store")
	}
	if _, ok := c.Get(context.Background(), cache.EmbeddingKey(7)); !ok {
		t.Error("vector not written back to the cache")
	}

	sum := meter.Summarize()
	if sum.EmbeddingCacheMisses != 1 {
		t.Errorf("misses = %d, want 1", sum.EmbeddingCacheMisses)
	}
	if sum.TotalTokens == 0 {
		t.Error("provider path should record approximate token usage")
	}
}

func TestGetOrCreate_CacheHit(t *testing.T) {
	provider := &embedmock.Provider{EmbedResult: []float32{1, 2, 3}}
	store := &catalogmock.Store{}
	svc, c := newTestService(provider, store)
	c.Set(context.Background(), cache.EmbeddingKey(7), []byte(`{"embedding":[4,5,6]}`), 0)
	meter := metering.NewCollector("test")

	vec, err := svc.GetOrCreate(context.Background(), testBook(), meter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 4 {
		t.Errorf("vec = %v, want cached vector", vec)
	}
	if len(provider.EmbedCalls) != 0 {
		t.Errorf("provider called %d times, want 0", len(provider.EmbedCalls))
	}
	if sum := meter.Summarize(); sum.EmbeddingCacheHits != 1 {
		t.Errorf("hits = %d, want 1", sum.EmbeddingCacheHits)
	}
}

func TestGetOrCreate_StoredVectorWritesBackToCache(t *testing.T) {
	provider := &embedmock.Provider{}
	store := &catalogmock.Store{Embeddings: map[int64][]float32{7: {7, 8, 9}}}
	svc, c := newTestService(provider, store)
	meter := metering.NewCollector("test")

	vec, err := svc.GetOrCreate(context.Background(), testBook(), meter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 7 {
		t.Errorf("vec = %v, want stored vector", vec)
	}
	if len(provider.EmbedCalls) != 0 {
		t.Errorf("provider called %d times, want 0", len(provider.EmbedCalls))
	}
	if _, ok := c.Get(context.Background(), cache.EmbeddingKey(7)); !ok {
		t.Error("stored vector not promoted into the cache")
	}
	if sum := meter.Summarize(); sum.EmbeddingCacheHits != 1 {
		t.Errorf("hits = %d, want 1", sum.EmbeddingCacheHits)
	}
}

func TestGetOrCreate_CorruptCacheEntryTreatedAsMiss(t *testing.T) {
	provider := &embedmock.Provider{EmbedResult: []float32{1, 2, 3}}
	store := &catalogmock.Store{}
	svc, c := newTestService(provider, store)
	c.Set(context.Background(), cache.EmbeddingKey(7), []byte("not json"), 0)

	vec, err := svc.GetOrCreate(context.Background(), testBook(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want fresh vector", len(vec))
	}
	if len(provider.EmbedCalls) != 1 {
		t.Errorf("provider called %d times, want 1", len(provider.EmbedCalls))
	}
}

func TestGetOrCreate_DimensionMismatch(t *testing.T) {
	provider := &embedmock.Provider{EmbedResult: []float32{1, 2}} // service expects 3
	store := &catalogmock.Store{}
	svc, _ := newTestService(provider, store)

	if _, err := svc.GetOrCreate(context.Background(), testBook(), nil); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if store.Embeddings[7] != nil {
		t.Error("wrong-width vector must not be persisted")
	}
}

func TestCreateBatch_SkipsStoredVectors(t *testing.T) {
	provider := &embedmock.Provider{
		EmbedBatchResult: [][]float32{{1, 2, 3}},
	}
	store := &catalogmock.Store{Embeddings: map[int64][]float32{7: {7, 8, 9}}}
	svc, c := newTestService(provider, store)

	books := []*catalog.Book{
		testBook(), // already embedded
		{ID: 8, Title: "Hyperion"},
	}
	created, err := svc.CreateBatch(context.Background(), books)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if len(provider.EmbedBatchCalls) != 1 {
		t.Fatalf("provider batch called %d times, want 1", len(provider.EmbedBatchCalls))
	}
	if got := provider.EmbedBatchCalls[0]; len(got) != 1 || !strings.HasPrefix(got[0], "Title: Hyperion") {
		t.Errorf("batch texts = %v, want only the unembedded book", got)
	}
	if store.Embeddings[8] == nil {
		t.Error("new vector not persisted")
	}
	if _, ok := c.Get(context.Background(), cache.EmbeddingKey(8)); !ok {
		t.Error("new vector not written to the cache")
	}
}

func TestCreateBatch_NothingPending(t *testing.T) {
	provider := &embedmock.Provider{}
	store := &catalogmock.Store{Embeddings: map[int64][]float32{7: {7, 8, 9}}}
	svc, _ := newTestService(provider, store)

	created, err := svc.CreateBatch(context.Background(), []*catalog.Book{testBook()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if len(provider.EmbedBatchCalls) != 0 {
		t.Errorf("provider batch called %d times, want 0", len(provider.EmbedBatchCalls))
	}
}

func TestCreateBatch_DimensionMismatch(t *testing.T) {
	provider := &embedmock.Provider{
		EmbedBatchResult: [][]float32{{1, 2}}, // service expects 3
	}
	store := &catalogmock.Store{}
	svc, _ := newTestService(provider, store)

	if _, err := svc.CreateBatch(context.Background(), []*catalog.Book{testBook()}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if store.Embeddings[7] != nil {
		t.Error("wrong-width vector must not be persisted")
	}
}

func TestEmbedQuery(t *testing.T) {
	provider := &embedmock.Provider{EmbedResult: []float32{1, 2, 3}, ModelIDValue: "text-embedding-3-small"}
	svc, c := newTestService(provider, &catalogmock.Store{})
	meter := metering.NewCollector("test")

	vec, err := svc.EmbedQuery(context.Background(), "cosy fantasy with dragons", meter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(vec))
	}
	if c.Len() != 0 {
		t.Error("query vectors must not be cached")
	}
	if sum := meter.Summarize(); sum.TotalTokens == 0 {
		t.Error("query embedding should record approximate token usage")
	}
}
