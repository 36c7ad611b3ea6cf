// Package metadata resolves book metadata from external catalogs.
//
// Two sources are supported: Open Library (primary, including work
// description enrichment) and Google Books (fallback). The [Resolver]
// composes them behind per-source circuit breakers so a degraded primary is
// routed around automatically.
package metadata

import (
	"context"
	"strconv"
)

// Source names used in logs and in ExternalRecord.Source.
const (
	SourceOpenLibrary = "open_library"
	SourceGoogleBooks = "google_books"
)

// ExternalRecord is a book as described by an external catalog, before it is
// upserted into ours.
type ExternalRecord struct {
	Title          string   `json:"title"`
	Authors        []string `json:"authors"`
	Subjects       []string `json:"subjects"`
	Description    string   `json:"description,omitempty"`
	ISBN13         string   `json:"isbn_13,omitempty"`
	ISBN10         string   `json:"isbn_10,omitempty"`
	OpenLibraryKey string   `json:"open_library_key,omitempty"`
	GoogleBooksID  string   `json:"google_books_id,omitempty"`
	CoverURL       string   `json:"cover_url,omitempty"`
	PublishYear    *int     `json:"publish_year,omitempty"`
	PageCount      *int     `json:"page_count,omitempty"`
	AverageRating  *float64 `json:"average_rating,omitempty"`
	Source         string   `json:"source"`
}

// Source is a searchable external catalog.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Search returns up to limit records matching query. No matches is not an
	// error; it returns an empty slice.
	Search(ctx context.Context, query string, limit int) ([]ExternalRecord, error)
}

// firstISBN13 returns the first 13-digit numeric ISBN in the list.
func firstISBN13(isbns []string) string {
	for _, isbn := range isbns {
		if len(isbn) == 13 && isDigits(isbn) {
			return isbn
		}
	}
	return ""
}

// firstISBN10 returns the first 10-character ISBN in the list.
func firstISBN10(isbns []string) string {
	for _, isbn := range isbns {
		if len(isbn) == 10 {
			return isbn
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// parseYear extracts the leading year from a date string like "2024" or
// "2024-01-15". Returns nil when no year can be parsed.
func parseYear(date string) *int {
	if len(date) < 4 {
		return nil
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return nil
	}
	return &year
}
