package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/metadata"
)

// Bounds on a recommendation request.
const (
	minFavoriteBooks = 3
	maxFavoriteBooks = 5

	defaultRecommendations = 10
	maxRecommendations     = 50

	searchIngestLimit = 5
)

// recommendationRequest is the body of POST /api/v1/recommendations.
type recommendationRequest struct {
	FavoriteBooks      []string `json:"favorite_books"`
	NumRecommendations int      `json:"num_recommendations"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	titles := make([]string, 0, len(req.FavoriteBooks))
	for _, t := range req.FavoriteBooks {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			titles = append(titles, trimmed)
		}
	}
	if len(titles) < minFavoriteBooks || len(titles) > maxFavoriteBooks {
		writeError(w, http.StatusBadRequest, "favorite_books must contain 3 to 5 titles")
		return
	}

	count := req.NumRecommendations
	if count <= 0 {
		count = defaultRecommendations
	}
	if count > maxRecommendations {
		count = maxRecommendations
	}

	resp, err := s.recommender.Recommend(r.Context(), titles, count)
	if err != nil {
		slog.Error("recommendation request failed", "error", err)
		writeError(w, http.StatusBadGateway, "recommendation failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	books, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		slog.Error("list books failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list books")
		return
	}
	if books == nil {
		books = []catalog.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

// searchRequest is the body of POST /api/v1/books/search.
type searchRequest struct {
	Query string `json:"query"`
}

// handleSearchBooks searches external catalogs and ingests every match.
func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	records := s.searcher.Search(r.Context(), query, searchIngestLimit)

	ingested := make([]catalog.Book, 0, len(records))
	for _, rec := range records {
		book := bookFromRecord(rec)
		if err := s.store.Upsert(r.Context(), book); err != nil {
			slog.Error("book ingest failed", "title", rec.Title, "error", err)
			writeError(w, http.StatusInternalServerError, "could not ingest book")
			return
		}
		ingested = append(ingested, *book)
	}
	writeJSON(w, http.StatusOK, ingested)
}

func (s *Server) handleScrapeReviews(w http.ResponseWriter, r *http.Request) {
	book, ok := s.bookFromPath(w, r)
	if !ok {
		return
	}

	author := ""
	if len(book.Authors) > 0 {
		author = book.Authors[0]
	}
	reviews := s.scraper.ScrapeReviews(r.Context(), book.Title, author)

	if len(reviews) > 0 {
		if err := s.store.AddReviews(r.Context(), book.ID, reviews); err != nil {
			slog.Error("store reviews failed", "book_id", book.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "could not store reviews")
			return
		}
	}

	status := "success"
	if len(reviews) == 0 {
		status = "no_reviews_found"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"book_id":         book.ID,
		"reviews_scraped": len(reviews),
		"status":          status,
	})
}

func (s *Server) handleEmbedBook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.bookFromPath(w, r)
	if !ok {
		return
	}

	vec, err := s.embedder.GetOrCreate(r.Context(), book, nil)
	if err != nil {
		slog.Error("embed book failed", "book_id", book.ID, "error", err)
		writeError(w, http.StatusBadGateway, "could not embed book")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"book_id":              book.ID,
		"embedding_dimensions": len(vec),
		"status":               "success",
	})
}

func (s *Server) handleAggregateMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.aggregate.Summarize())
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "healthy",
		Version:  Version,
		Database: "healthy",
		// The in-process cache has no failure mode to probe.
		Cache: "healthy",
	}
	if s.dbPing != nil {
		if err := s.dbPing(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unhealthy"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// bookFromPath loads the book identified by the {id} path segment, writing
// the error response itself when the ID is bad or unknown.
func (s *Server) bookFromPath(w http.ResponseWriter, r *http.Request) (*catalog.Book, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return nil, false
	}
	book, err := s.store.LoadWithReviews(r.Context(), id)
	if err != nil {
		slog.Error("load book failed", "book_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load book")
		return nil, false
	}
	if book == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return nil, false
	}
	return book, true
}

// bookFromRecord maps an external record onto a catalog book for ingestion.
func bookFromRecord(rec metadata.ExternalRecord) *catalog.Book {
	return &catalog.Book{
		Title:          rec.Title,
		Authors:        rec.Authors,
		Subjects:       rec.Subjects,
		Description:    rec.Description,
		ISBN13:         rec.ISBN13,
		ISBN10:         rec.ISBN10,
		OpenLibraryKey: rec.OpenLibraryKey,
		GoogleBooksID:  rec.GoogleBooksID,
		CoverURL:       rec.CoverURL,
		PublishYear:    rec.PublishYear,
		PageCount:      rec.PageCount,
		AverageRating:  rec.AverageRating,
	}
}

// queryInt reads an integer query parameter with a default for absent or
// malformed values. Negative values fall back to the default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
