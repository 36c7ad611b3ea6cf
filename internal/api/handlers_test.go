package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/liberhq/liber/internal/agent"
	"github.com/liberhq/liber/internal/catalog"
	catalogmock "github.com/liberhq/liber/internal/catalog/mock"
	"github.com/liberhq/liber/internal/metadata"
	"github.com/liberhq/liber/internal/metering"
)

type fakeRecommender struct {
	resp *agent.RecommendationResponse
	err  error

	gotFavorites []string
	gotCount     int
}

func (f *fakeRecommender) Recommend(_ context.Context, favorites []string, count int) (*agent.RecommendationResponse, error) {
	f.gotFavorites = favorites
	f.gotCount = count
	return f.resp, f.err
}

type fakeSearcher struct {
	records []metadata.ExternalRecord
}

func (f *fakeSearcher) Search(context.Context, string, int) []metadata.ExternalRecord {
	return f.records
}

type fakeScraper struct {
	reviews []catalog.Review
}

func (f *fakeScraper) ScrapeReviews(context.Context, string, string) []catalog.Review {
	return f.reviews
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) GetOrCreate(context.Context, *catalog.Book, *metering.Collector) ([]float32, error) {
	return f.vec, f.err
}

type serverFixture struct {
	recommender *fakeRecommender
	store       *catalogmock.Store
	searcher    *fakeSearcher
	scraper     *fakeScraper
	embedder    *fakeEmbedder
	mux         *http.ServeMux
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		recommender: &fakeRecommender{resp: &agent.RecommendationResponse{
			Recommendations: []agent.RecommendationItem{},
			TasteProfile:    &agent.TasteProfile{},
		}},
		store:    &catalogmock.Store{},
		searcher: &fakeSearcher{},
		scraper:  &fakeScraper{},
		embedder: &fakeEmbedder{vec: []float32{1, 2, 3}},
	}
	srv := NewServer(Config{
		Recommender: f.recommender,
		Store:       f.store,
		Searcher:    f.searcher,
		Scraper:     f.scraper,
		Embedder:    f.embedder,
		Aggregate:   metering.NewAggregate(),
	})
	f.mux = http.NewServeMux()
	srv.Register(f.mux)
	return f
}

func (f *serverFixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestRecommendations_Success(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("POST", "/api/v1/recommendations",
		`{"favorite_books": [" Dune ", "Hyperion", "Foundation"], "num_recommendations": 7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if got := f.recommender.gotFavorites; len(got) != 3 || got[0] != "Dune" {
		t.Errorf("favorites = %v, want trimmed titles", got)
	}
	if f.recommender.gotCount != 7 {
		t.Errorf("count = %d, want 7", f.recommender.gotCount)
	}
}

func TestRecommendations_CountDefaultsAndCaps(t *testing.T) {
	f := newServerFixture(t)

	f.do("POST", "/api/v1/recommendations", `{"favorite_books": ["a", "b", "c"]}`)
	if f.recommender.gotCount != 10 {
		t.Errorf("count = %d, want default 10", f.recommender.gotCount)
	}

	f.do("POST", "/api/v1/recommendations", `{"favorite_books": ["a", "b", "c"], "num_recommendations": 500}`)
	if f.recommender.gotCount != 50 {
		t.Errorf("count = %d, want cap 50", f.recommender.gotCount)
	}
}

func TestRecommendations_ValidatesTitleCount(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"too few", `{"favorite_books": ["a", "b"]}`},
		{"too many", `{"favorite_books": ["a", "b", "c", "d", "e", "f"]}`},
		{"blank titles ignored", `{"favorite_books": ["a", "b", "  "]}`},
		{"invalid json", `{"favorite_books": [`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do("POST", "/api/v1/recommendations", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			body := decodeBody[map[string]string](t, rec)
			if body["detail"] == "" {
				t.Error("error body missing detail field")
			}
		})
	}
}

func TestRecommendations_PipelineFailure(t *testing.T) {
	f := newServerFixture(t)
	f.recommender.err = errors.New("profiling stage: model down")

	rec := f.do("POST", "/api/v1/recommendations", `{"favorite_books": ["a", "b", "c"]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["detail"], "model down") {
		t.Errorf("detail = %q, should carry the cause", body["detail"])
	}
}

func TestListBooks(t *testing.T) {
	f := newServerFixture(t)
	f.store.Books = map[int64]catalog.Book{
		1: {ID: 1, Title: "Dune"},
		2: {ID: 2, Title: "Hyperion"},
	}

	rec := f.do("GET", "/api/v1/books?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	books := decodeBody[[]catalog.Book](t, rec)
	if len(books) != 2 {
		t.Errorf("got %d books, want 2", len(books))
	}
}

func TestListBooks_EmptyCatalogReturnsEmptyArray(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("GET", "/api/v1/books", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestSearchBooks_IngestsMatches(t *testing.T) {
	f := newServerFixture(t)
	f.searcher.records = []metadata.ExternalRecord{
		{Title: "Dune", ISBN13: "9780441013593", Source: metadata.SourceOpenLibrary},
	}

	rec := f.do("POST", "/api/v1/books/search", `{"query": "dune"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if len(f.store.UpsertCalls) != 1 {
		t.Fatalf("upserts = %d, want 1", len(f.store.UpsertCalls))
	}
	if f.store.UpsertCalls[0].ISBN13 != "9780441013593" {
		t.Errorf("upserted ISBN13 = %q", f.store.UpsertCalls[0].ISBN13)
	}
	books := decodeBody[[]catalog.Book](t, rec)
	if len(books) != 1 || books[0].ID == 0 {
		t.Errorf("response books = %v, want ingested book with assigned ID", books)
	}
}

func TestSearchBooks_EmptyQuery(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("POST", "/api/v1/books/search", `{"query": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScrapeReviews_StoresResults(t *testing.T) {
	f := newServerFixture(t)
	f.store.Books = map[int64]catalog.Book{1: {ID: 1, Title: "Dune", Authors: []string{"Frank Herbert"}}}
	f.scraper.reviews = []catalog.Review{{Source: "goodreads", ReviewText: "Great."}}

	rec := f.do("POST", "/api/v1/books/1/scrape", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "success" {
		t.Errorf("status = %v, want success", body["status"])
	}
	if body["reviews_scraped"] != float64(1) {
		t.Errorf("reviews_scraped = %v, want 1", body["reviews_scraped"])
	}
	if got := len(f.store.Books[1].Reviews); got != 1 {
		t.Errorf("stored reviews = %d, want 1", got)
	}
}

func TestScrapeReviews_NothingFound(t *testing.T) {
	f := newServerFixture(t)
	f.store.Books = map[int64]catalog.Book{1: {ID: 1, Title: "Dune"}}

	rec := f.do("POST", "/api/v1/books/1/scrape", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "no_reviews_found" {
		t.Errorf("status = %v, want no_reviews_found", body["status"])
	}
}

func TestScrapeReviews_UnknownBook(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("POST", "/api/v1/books/99/scrape", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestScrapeReviews_BadID(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("POST", "/api/v1/books/abc/scrape", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEmbedBook(t *testing.T) {
	f := newServerFixture(t)
	f.store.Books = map[int64]catalog.Book{1: {ID: 1, Title: "Dune"}}

	rec := f.do("POST", "/api/v1/books/1/embed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["embedding_dimensions"] != float64(3) {
		t.Errorf("embedding_dimensions = %v, want 3", body["embedding_dimensions"])
	}
}

func TestEmbedBook_ProviderFailure(t *testing.T) {
	f := newServerFixture(t)
	f.store.Books = map[int64]catalog.Book{1: {ID: 1, Title: "Dune"}}
	f.embedder.err = errors.New("provider down")

	rec := f.do("POST", "/api/v1/books/1/embed", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestAggregateMetrics(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("GET", "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[metering.AggregateSummary](t, rec)
	if body.TotalRequests != 0 {
		t.Errorf("TotalRequests = %d, want 0", body.TotalRequests)
	}
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do("GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
	if body["version"] != Version {
		t.Errorf("version = %q, want %q", body["version"], Version)
	}
}

func TestHealth_DegradedDatabase(t *testing.T) {
	f := newServerFixture(t)
	srv := NewServer(Config{
		Recommender: f.recommender,
		Store:       f.store,
		Searcher:    f.searcher,
		Scraper:     f.scraper,
		Embedder:    f.embedder,
		Aggregate:   metering.NewAggregate(),
		DBPing:      func(context.Context) error { return errors.New("connection refused") },
	})
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %q, want degraded", body["status"])
	}
	if body["database"] != "unhealthy" {
		t.Errorf("database = %q, want unhealthy", body["database"])
	}
}
