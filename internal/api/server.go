// Package api exposes the HTTP surface of the recommendation service: the
// pipeline endpoint, catalog browsing and ingestion, review scraping, and
// the metrics/health endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liberhq/liber/internal/agent"
	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/metadata"
	"github.com/liberhq/liber/internal/metering"
	"github.com/liberhq/liber/internal/observe"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Recommender runs the recommendation pipeline. Satisfied by
// *orchestrator.Orchestrator.
type Recommender interface {
	Recommend(ctx context.Context, favorites []string, count int) (*agent.RecommendationResponse, error)
}

// MetadataSearcher finds external records for ingestion. Satisfied by
// *metadata.Resolver.
type MetadataSearcher interface {
	Search(ctx context.Context, query string, limit int) []metadata.ExternalRecord
}

// ReviewScraper collects reviews for a book. Satisfied by *scraper.Scraper.
type ReviewScraper interface {
	ScrapeReviews(ctx context.Context, title, author string) []catalog.Review
}

// Embedder creates or fetches a book's embedding. Satisfied by
// *embedding.Service.
type Embedder interface {
	GetOrCreate(ctx context.Context, book *catalog.Book, meter *metering.Collector) ([]float32, error)
}

// Server holds the service dependencies behind the HTTP handlers.
type Server struct {
	recommender Recommender
	store       catalog.Store
	searcher    MetadataSearcher
	scraper     ReviewScraper
	embedder    Embedder
	aggregate   *metering.Aggregate
	dbPing      func(ctx context.Context) error
}

// Config collects the dependencies for [NewServer]. All fields except DBPing
// are required; a nil DBPing reports the database as healthy.
type Config struct {
	Recommender Recommender
	Store       catalog.Store
	Searcher    MetadataSearcher
	Scraper     ReviewScraper
	Embedder    Embedder
	Aggregate   *metering.Aggregate
	DBPing      func(ctx context.Context) error
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	return &Server{
		recommender: cfg.Recommender,
		store:       cfg.Store,
		searcher:    cfg.Searcher,
		scraper:     cfg.Scraper,
		embedder:    cfg.Embedder,
		aggregate:   cfg.Aggregate,
		dbPing:      cfg.DBPing,
	}
}

// Handler returns the fully wired HTTP handler: all routes behind the
// observability middleware, plus the Prometheus scrape endpoint.
func (s *Server) Handler(metrics *observe.Metrics) http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(metrics)(mux)
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/recommendations", s.handleRecommendations)
	mux.HandleFunc("GET /api/v1/books", s.handleListBooks)
	mux.HandleFunc("POST /api/v1/books/search", s.handleSearchBooks)
	mux.HandleFunc("POST /api/v1/books/{id}/scrape", s.handleScrapeReviews)
	mux.HandleFunc("POST /api/v1/books/{id}/embed", s.handleEmbedBook)
	mux.HandleFunc("GET /api/v1/metrics", s.handleAggregateMetrics)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail":"encoding error"}`, http.StatusInternalServerError)
	}
}

// writeError sends an error body in the {"detail": ...} shape clients
// expect.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
