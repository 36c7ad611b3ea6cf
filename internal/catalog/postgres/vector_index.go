package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/liberhq/liber/internal/catalog"
)

// SaveEmbedding implements [catalog.Store]. It upserts a pre-computed
// embedding for a book; an existing vector is completely replaced.
func (s *Store) SaveEmbedding(ctx context.Context, bookID int64, embedding []float32, text string) error {
	const q = `
		INSERT INTO book_embeddings (book_id, embedding, text_content)
		VALUES ($1, $2, $3)
		ON CONFLICT (book_id) DO UPDATE SET
		    embedding    = EXCLUDED.embedding,
		    text_content = EXCLUDED.text_content`

	_, err := s.pool.Exec(ctx, q, bookID, pgvector.NewVector(embedding), text)
	if err != nil {
		return fmt.Errorf("postgres catalog: save embedding for book %d: %w", bookID, err)
	}
	return nil
}

// LoadEmbedding implements [catalog.Store].
func (s *Store) LoadEmbedding(ctx context.Context, bookID int64) ([]float32, error) {
	const q = `SELECT embedding FROM book_embeddings WHERE book_id = $1`

	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, q, bookID).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: load embedding for book %d: %w", bookID, err)
	}
	return vec.Slice(), nil
}

// CountEmbeddings implements [catalog.Store].
func (s *Store) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM book_embeddings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres catalog: count embeddings: %w", err)
	}
	return count, nil
}

// Nearest implements [catalog.VectorIndex]. It finds the k stored book
// embeddings closest (cosine distance) to the supplied query vector.
//
// Results are ordered by ascending cosine distance (most similar first).
func (s *Store) Nearest(ctx context.Context, query []float32, k int) ([]catalog.Neighbor, error) {
	const q = `
		SELECT book_id, embedding <=> $1 AS distance
		FROM   book_embeddings
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: nearest: %w", err)
	}

	neighbors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Neighbor, error) {
		var n catalog.Neighbor
		err := row.Scan(&n.BookID, &n.Distance)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: scan neighbors: %w", err)
	}
	if neighbors == nil {
		neighbors = []catalog.Neighbor{}
	}
	return neighbors, nil
}
