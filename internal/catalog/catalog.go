// Package catalog defines the book catalog data model and the store
// abstractions the recommendation pipeline depends on: metadata lookup,
// embedding persistence, and nearest-neighbour vector search.
//
// Implementations live in subpackages (postgres for production, mock for
// tests) and must be safe for concurrent use.
package catalog

import (
	"context"
	"time"
)

// Book is a catalog item. The recommendation core only reads books; writes
// happen through ingestion (seeding, metadata search, scraping).
type Book struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Authors        []string   `json:"authors"`
	Subjects       []string   `json:"subjects"`
	Description    string     `json:"description,omitempty"`
	ISBN13         string     `json:"isbn_13,omitempty"`
	ISBN10         string     `json:"isbn_10,omitempty"`
	OpenLibraryKey string     `json:"open_library_key,omitempty"`
	GoogleBooksID  string     `json:"google_books_id,omitempty"`
	CoverURL       string     `json:"cover_url,omitempty"`
	PublishYear    *int       `json:"publish_year,omitempty"`
	PageCount      *int       `json:"page_count,omitempty"`
	AverageRating  *float64   `json:"average_rating,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Reviews is optional enrichment, populated only by LoadWithReviews.
	Reviews []Review `json:"-"`
}

// Review is scraped reader commentary attached to a book. Review text feeds
// into embedding construction when present.
type Review struct {
	ID         int64    `json:"id"`
	BookID     int64    `json:"book_id"`
	Source     string   `json:"source"`
	ReviewText string   `json:"review_text"`
	Rating     *float64 `json:"rating,omitempty"`
	Reviewer   string   `json:"reviewer,omitempty"`
}

// Neighbor is one vector-search result: a book identity with its cosine
// distance from the query vector. Distance is in [0, 2]; lower is closer.
type Neighbor struct {
	BookID   int64
	Distance float64
}

// Store is the catalog persistence abstraction.
type Store interface {
	// FindByTitleSubstring returns the first book whose title contains the
	// given string, case-insensitively. Returns (nil, nil) when nothing matches.
	FindByTitleSubstring(ctx context.Context, title string) (*Book, error)

	// Load fetches a book by ID without reviews. Returns (nil, nil) when no
	// book has that ID.
	Load(ctx context.Context, id int64) (*Book, error)

	// LoadWithReviews fetches a book by ID including its reviews. Returns
	// (nil, nil) when no book has that ID.
	LoadWithReviews(ctx context.Context, id int64) (*Book, error)

	// List returns books ordered by creation time, newest first.
	List(ctx context.Context, limit, offset int) ([]Book, error)

	// Upsert inserts book or updates the existing row that shares one of its
	// unique external identifiers, filling in book.ID and book.CreatedAt.
	Upsert(ctx context.Context, book *Book) error

	// AddReviews appends reviews to a book.
	AddReviews(ctx context.Context, bookID int64, reviews []Review) error

	// SaveEmbedding stores (or replaces) a book's embedding vector together
	// with the text it was computed from.
	SaveEmbedding(ctx context.Context, bookID int64, embedding []float32, text string) error

	// LoadEmbedding returns a book's stored embedding vector, or (nil, nil)
	// when the book has none.
	LoadEmbedding(ctx context.Context, bookID int64) ([]float32, error)

	// CountEmbeddings reports how many books have stored embeddings.
	CountEmbeddings(ctx context.Context) (int64, error)
}

// VectorIndex answers nearest-neighbour queries over the stored book
// embeddings.
type VectorIndex interface {
	// Nearest returns up to k neighbours of the query vector ordered by
	// ascending cosine distance.
	Nearest(ctx context.Context, query []float32, k int) ([]Neighbor, error)
}
