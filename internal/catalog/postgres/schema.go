// Package postgres provides the PostgreSQL-backed implementation of the book
// catalog: metadata rows, scraped reviews, and pgvector embeddings with an
// HNSW index for nearest-neighbour search.
//
// All operations share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//
//	book, _ := store.FindByTitleSubstring(ctx, "dune")
//	neighbors, _ := store.Nearest(ctx, queryVec, 25)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlBooks = `
CREATE TABLE IF NOT EXISTS books (
    id               BIGSERIAL    PRIMARY KEY,
    title            VARCHAR(500) NOT NULL,
    authors          TEXT[]       NOT NULL DEFAULT '{}',
    subjects         TEXT[]       NOT NULL DEFAULT '{}',
    description      TEXT,
    isbn_13          VARCHAR(13)  UNIQUE,
    isbn_10          VARCHAR(10)  UNIQUE,
    open_library_key VARCHAR(100) UNIQUE,
    google_books_id  VARCHAR(100) UNIQUE,
    cover_url        VARCHAR(500),
    publish_year     INTEGER,
    page_count       INTEGER,
    average_rating   DOUBLE PRECISION,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_books_title ON books (title);
CREATE INDEX IF NOT EXISTS idx_books_title_lower ON books (lower(title));
CREATE INDEX IF NOT EXISTS idx_books_created_at ON books (created_at);
`

const ddlReviews = `
CREATE TABLE IF NOT EXISTS reviews (
    id          BIGSERIAL        PRIMARY KEY,
    book_id     BIGINT           NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    source      VARCHAR(50)      NOT NULL,
    review_text TEXT             NOT NULL,
    rating      DOUBLE PRECISION,
    reviewer    VARCHAR(200),
    created_at  TIMESTAMPTZ      NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reviews_book_id ON reviews (book_id);
`

// ddlBookEmbeddings is parameterised on the vector dimension, which is fixed
// for the whole index and set once at migration time.
const ddlBookEmbeddings = `
CREATE TABLE IF NOT EXISTS book_embeddings (
    id           BIGSERIAL    PRIMARY KEY,
    book_id      BIGINT       NOT NULL UNIQUE REFERENCES books(id) ON DELETE CASCADE,
    embedding    VECTOR(%d)   NOT NULL,
    text_content TEXT         NOT NULL,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_book_embeddings_hnsw
    ON book_embeddings USING hnsw (embedding vector_cosine_ops);
`

// Migrate creates the pgvector extension and all catalog tables if they do not
// already exist. embeddingDimensions fixes the vector column width.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres catalog: embedding dimensions must be positive, got %d", embeddingDimensions)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		ddlBooks,
		ddlReviews,
		fmt.Sprintf(ddlBookEmbeddings, embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres catalog: migrate: %w", err)
		}
	}
	return nil
}
