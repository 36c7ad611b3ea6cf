// Package mock provides in-memory test doubles for the catalog store and
// vector index.
//
// Store serves books from a fixed map and records lookups; Index returns a
// pre-canned neighbor list. Both are safe for concurrent use.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/liberhq/liber/internal/catalog"
)

// Store is a mock implementation of catalog.Store backed by a book map.
type Store struct {
	mu sync.Mutex

	// Books maps book ID to the served book. Load and LoadWithReviews return
	// a copy of the mapped value.
	Books map[int64]catalog.Book

	// LoadErr, if non-nil, is returned by Load and LoadWithReviews.
	LoadErr error

	// FindErr, if non-nil, is returned by FindByTitleSubstring.
	FindErr error

	// Embeddings maps book ID to a stored embedding vector.
	Embeddings map[int64][]float32

	// SaveEmbeddingErr, if non-nil, is returned by SaveEmbedding.
	SaveEmbeddingErr error

	// --- Call records ---

	// FindCalls records every title passed to FindByTitleSubstring.
	FindCalls []string

	// LoadCalls records every ID passed to Load or LoadWithReviews.
	LoadCalls []int64

	// UpsertCalls records every book passed to Upsert.
	UpsertCalls []catalog.Book

	nextID int64
}

var _ catalog.Store = (*Store)(nil)

// FindByTitleSubstring returns the first book (lowest ID) whose title
// contains title case-insensitively, or (nil, nil).
func (s *Store) FindByTitleSubstring(_ context.Context, title string) (*catalog.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FindCalls = append(s.FindCalls, title)
	if s.FindErr != nil {
		return nil, s.FindErr
	}

	needle := strings.ToLower(title)
	var best *catalog.Book
	for id := range s.Books {
		b := s.Books[id]
		if strings.Contains(strings.ToLower(b.Title), needle) {
			if best == nil || b.ID < best.ID {
				copied := b
				best = &copied
			}
		}
	}
	return best, nil
}

// Load returns the mapped book, LoadErr, or (nil, nil) when the ID is absent.
func (s *Store) Load(_ context.Context, id int64) (*catalog.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadCalls = append(s.LoadCalls, id)
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	b, ok := s.Books[id]
	if !ok {
		return nil, nil
	}
	copied := b
	return &copied, nil
}

// LoadWithReviews behaves like Load; review enrichment is whatever the mapped
// book carries.
func (s *Store) LoadWithReviews(ctx context.Context, id int64) (*catalog.Book, error) {
	return s.Load(ctx, id)
}

// List returns all books ordered by descending ID.
func (s *Store) List(_ context.Context, limit, offset int) ([]catalog.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var maxID int64
	for id := range s.Books {
		if id > maxID {
			maxID = id
		}
	}
	var out []catalog.Book
	for id := maxID; id > 0 && len(out) < limit+offset; id-- {
		if b, ok := s.Books[id]; ok {
			out = append(out, b)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:], nil
}

// Upsert records the call and assigns a fresh ID when the book has none.
func (s *Store) Upsert(_ context.Context, book *catalog.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if book.ID == 0 {
		s.nextID++
		book.ID = s.nextID + int64(len(s.Books))
	}
	if s.Books == nil {
		s.Books = make(map[int64]catalog.Book)
	}
	s.Books[book.ID] = *book
	s.UpsertCalls = append(s.UpsertCalls, *book)
	return nil
}

// AddReviews appends reviews to the mapped book.
func (s *Store) AddReviews(_ context.Context, bookID int64, reviews []catalog.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Books[bookID]
	if !ok {
		return catalogNotFoundError(bookID)
	}
	b.Reviews = append(b.Reviews, reviews...)
	s.Books[bookID] = b
	return nil
}

// SaveEmbedding stores the vector in the Embeddings map.
func (s *Store) SaveEmbedding(_ context.Context, bookID int64, embedding []float32, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveEmbeddingErr != nil {
		return s.SaveEmbeddingErr
	}
	if s.Embeddings == nil {
		s.Embeddings = make(map[int64][]float32)
	}
	s.Embeddings[bookID] = embedding
	return nil
}

// LoadEmbedding returns the stored vector or (nil, nil).
func (s *Store) LoadEmbedding(_ context.Context, bookID int64) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Embeddings[bookID], nil
}

// CountEmbeddings reports the number of stored vectors.
func (s *Store) CountEmbeddings(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.Embeddings)), nil
}

type catalogNotFoundError int64

func (e catalogNotFoundError) Error() string {
	return "mock catalog: book not found"
}

// Index is a mock implementation of catalog.VectorIndex.
type Index struct {
	mu sync.Mutex

	// Neighbors is returned by Nearest, truncated to k.
	Neighbors []catalog.Neighbor

	// NearestErr, if non-nil, is returned as the error from Nearest.
	NearestErr error

	// NearestCalls records the k of every Nearest invocation.
	NearestCalls []int

	// Queries records a copy of every query vector.
	Queries [][]float32
}

var _ catalog.VectorIndex = (*Index)(nil)

// Nearest records the call and returns the canned neighbor list, truncated to k.
func (i *Index) Nearest(_ context.Context, query []float32, k int) ([]catalog.Neighbor, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	cp := make([]float32, len(query))
	copy(cp, query)
	i.Queries = append(i.Queries, cp)
	i.NearestCalls = append(i.NearestCalls, k)
	if i.NearestErr != nil {
		return nil, i.NearestErr
	}
	if k > len(i.Neighbors) {
		k = len(i.Neighbors)
	}
	out := make([]catalog.Neighbor, k)
	copy(out, i.Neighbors[:k])
	return out, nil
}
