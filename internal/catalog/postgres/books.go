package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/liberhq/liber/internal/catalog"
)

// bookColumns is the shared SELECT column list for scanning into catalog.Book.
// Nullable text columns are coalesced so they scan into plain strings.
const bookColumns = `
	id, title, authors, subjects,
	COALESCE(description, ''),
	COALESCE(isbn_13, ''), COALESCE(isbn_10, ''),
	COALESCE(open_library_key, ''), COALESCE(google_books_id, ''),
	COALESCE(cover_url, ''),
	publish_year, page_count, average_rating, created_at`

func scanBook(row pgx.Row) (*catalog.Book, error) {
	var b catalog.Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Authors, &b.Subjects,
		&b.Description,
		&b.ISBN13, &b.ISBN10,
		&b.OpenLibraryKey, &b.GoogleBooksID,
		&b.CoverURL,
		&b.PublishYear, &b.PageCount, &b.AverageRating, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindByTitleSubstring implements [catalog.Store]. The match is a
// case-insensitive substring search, limit 1, ties broken by earliest created.
func (s *Store) FindByTitleSubstring(ctx context.Context, title string) (*catalog.Book, error) {
	q := `SELECT` + bookColumns + `
		FROM books
		WHERE title ILIKE '%' || $1 || '%'
		ORDER BY created_at
		LIMIT 1`

	book, err := scanBook(s.pool.QueryRow(ctx, q, title))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: find by title %q: %w", title, err)
	}
	return book, nil
}

// Load implements [catalog.Store].
func (s *Store) Load(ctx context.Context, id int64) (*catalog.Book, error) {
	q := `SELECT` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: load book %d: %w", id, err)
	}
	return book, nil
}

// LoadWithReviews implements [catalog.Store].
func (s *Store) LoadWithReviews(ctx context.Context, id int64) (*catalog.Book, error) {
	book, err := s.Load(ctx, id)
	if err != nil || book == nil {
		return nil, err
	}

	q := `SELECT id, book_id, source, review_text, rating, COALESCE(reviewer, '')
		FROM reviews
		WHERE book_id = $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: load reviews for book %d: %w", id, err)
	}
	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Review, error) {
		var r catalog.Review
		err := row.Scan(&r.ID, &r.BookID, &r.Source, &r.ReviewText, &r.Rating, &r.Reviewer)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: scan reviews for book %d: %w", id, err)
	}
	book.Reviews = reviews
	return book, nil
}

// List implements [catalog.Store].
func (s *Store) List(ctx context.Context, limit, offset int) ([]catalog.Book, error) {
	q := `SELECT` + bookColumns + `
		FROM books
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: list books: %w", err)
	}
	books, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Book, error) {
		b, err := scanBook(row)
		if err != nil {
			return catalog.Book{}, err
		}
		return *b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres catalog: scan books: %w", err)
	}
	return books, nil
}

// Upsert implements [catalog.Store]. An existing row is matched by the first
// present external identifier (ISBN-13, Open Library key, Google Books ID);
// without any identifier the book is always inserted.
func (s *Store) Upsert(ctx context.Context, book *catalog.Book) error {
	existingID, err := s.findExistingID(ctx, book)
	if err != nil {
		return err
	}

	if existingID != 0 {
		q := `UPDATE books SET
				title = $2, authors = $3, subjects = $4,
				description = NULLIF($5, ''),
				isbn_13 = NULLIF($6, ''), isbn_10 = NULLIF($7, ''),
				open_library_key = NULLIF($8, ''), google_books_id = NULLIF($9, ''),
				cover_url = NULLIF($10, ''),
				publish_year = $11, page_count = $12, average_rating = $13,
				updated_at = now()
			WHERE id = $1
			RETURNING created_at`
		err := s.pool.QueryRow(ctx, q, existingID,
			book.Title, book.Authors, book.Subjects, book.Description,
			book.ISBN13, book.ISBN10, book.OpenLibraryKey, book.GoogleBooksID,
			book.CoverURL, book.PublishYear, book.PageCount, book.AverageRating,
		).Scan(&book.CreatedAt)
		if err != nil {
			return fmt.Errorf("postgres catalog: update book %d: %w", existingID, err)
		}
		book.ID = existingID
		return nil
	}

	q := `INSERT INTO books
			(title, authors, subjects, description,
			 isbn_13, isbn_10, open_library_key, google_books_id,
			 cover_url, publish_year, page_count, average_rating)
		VALUES
			($1, $2, $3, NULLIF($4, ''),
			 NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			 NULLIF($9, ''), $10, $11, $12)
		RETURNING id, created_at`
	err = s.pool.QueryRow(ctx, q,
		book.Title, book.Authors, book.Subjects, book.Description,
		book.ISBN13, book.ISBN10, book.OpenLibraryKey, book.GoogleBooksID,
		book.CoverURL, book.PublishYear, book.PageCount, book.AverageRating,
	).Scan(&book.ID, &book.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres catalog: insert book %q: %w", book.Title, err)
	}
	return nil
}

// findExistingID looks up a book row sharing one of the external identifiers.
// Returns 0 when no identifier matches (or none is present).
func (s *Store) findExistingID(ctx context.Context, book *catalog.Book) (int64, error) {
	q := `SELECT id FROM books
		WHERE (isbn_13 = NULLIF($1, ''))
		   OR (open_library_key = NULLIF($2, ''))
		   OR (google_books_id = NULLIF($3, ''))
		LIMIT 1`

	var id int64
	err := s.pool.QueryRow(ctx, q, book.ISBN13, book.OpenLibraryKey, book.GoogleBooksID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres catalog: find existing book: %w", err)
	}
	return id, nil
}

// AddReviews implements [catalog.Store].
func (s *Store) AddReviews(ctx context.Context, bookID int64, reviews []catalog.Review) error {
	for _, r := range reviews {
		q := `INSERT INTO reviews (book_id, source, review_text, rating, reviewer)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))`
		if _, err := s.pool.Exec(ctx, q, bookID, r.Source, r.ReviewText, r.Rating, r.Reviewer); err != nil {
			return fmt.Errorf("postgres catalog: add review for book %d: %w", bookID, err)
		}
	}
	return nil
}
