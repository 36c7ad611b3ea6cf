// Command seed populates the catalog with a curated set of books: each
// title is resolved against the external metadata sources, upserted into
// PostgreSQL, and embedded into the vector index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liberhq/liber/internal/cache"
	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/catalog/postgres"
	"github.com/liberhq/liber/internal/config"
	"github.com/liberhq/liber/internal/embedding"
	"github.com/liberhq/liber/internal/metadata"
	oaembed "github.com/liberhq/liber/pkg/provider/embeddings/openai"
)

// seedConcurrency bounds parallel resolve-and-embed workers. The metadata
// clients rate-limit themselves, so a small pool is enough.
const seedConcurrency = 4

// metadataRateLimit matches the server's per-host request rate.
const metadataRateLimit = 2.0

// seedQueries is a curated list covering diverse genres.
var seedQueries = []string{
	"1984 George Orwell",
	"Pride and Prejudice Jane Austen",
	"The Great Gatsby F. Scott Fitzgerald",
	"To Kill a Mockingbird Harper Lee",
	"One Hundred Years of Solitude Gabriel Garcia Marquez",
	"The Hitchhiker's Guide to the Galaxy Douglas Adams",
	"Dune Frank Herbert",
	"The Name of the Wind Patrick Rothfuss",
	"Sapiens Yuval Noah Harari",
	"Thinking Fast and Slow Daniel Kahneman",
	"The Catcher in the Rye J.D. Salinger",
	"Brave New World Aldous Huxley",
	"The Lord of the Rings J.R.R. Tolkien",
	"Harry Potter and the Sorcerer's Stone J.K. Rowling",
	"Crime and Punishment Fyodor Dostoevsky",
	"The Road Cormac McCarthy",
	"Neuromancer William Gibson",
	"The Left Hand of Darkness Ursula K. Le Guin",
	"Beloved Toni Morrison",
	"The Alchemist Paulo Coelho",
	"Slaughterhouse-Five Kurt Vonnegut",
	"Fahrenheit 451 Ray Bradbury",
	"The Handmaid's Tale Margaret Atwood",
	"Blood Meridian Cormac McCarthy",
	"Norwegian Wood Haruki Murakami",
	"The Brothers Karamazov Fyodor Dostoevsky",
	"Catch-22 Joseph Heller",
	"The Color Purple Alice Walker",
	"Ender's Game Orson Scott Card",
	"The Martian Andy Weir",
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var embedOpts []oaembed.Option
	if cfg.Providers.Embeddings.BaseURL != "" {
		embedOpts = append(embedOpts, oaembed.WithBaseURL(cfg.Providers.Embeddings.BaseURL))
	}
	embedProvider, err := oaembed.New(cfg.Providers.Embeddings.APIKey, cfg.Providers.Embeddings.Model, embedOpts...)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}

	store, err := postgres.NewStore(ctx, cfg.Database.DSN, cfg.Database.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to open catalog store", "err", err)
		return 1
	}
	defer store.Close()

	scraperTimeout := time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second
	resolver := metadata.NewResolver(
		metadata.NewOpenLibrary(scraperTimeout, metadataRateLimit),
		metadata.NewGoogleBooks(cfg.Providers.GoogleBooksAPIKey, scraperTimeout, metadataRateLimit),
	)

	embedService := embedding.NewService(
		embedProvider,
		store,
		cache.NewMemory(cfg.Cache.MaxEntries),
		cfg.Database.EmbeddingDimensions,
		time.Duration(cfg.Cache.EmbeddingTTLSeconds)*time.Second,
	)

	var (
		mu       sync.Mutex
		ingested []*catalog.Book
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for _, query := range seedQueries {
		g.Go(func() error {
			book, err := seedOne(gctx, query, resolver, store)
			if err != nil {
				// A failed title is logged and skipped; seeding continues.
				slog.Error("seed query failed", "query", query, "err", err)
				return nil
			}
			if book != nil {
				mu.Lock()
				ingested = append(ingested, book)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("seed aborted", "err", err)
		return 1
	}

	embedded, err := embedService.CreateBatch(ctx, ingested)
	if err != nil {
		slog.Error("batch embed failed", "embedded", embedded, "err", err)
		return 1
	}

	inCatalog, err := store.CountEmbeddings(ctx)
	if err != nil {
		slog.Warn("could not count stored embeddings", "err", err)
	}
	slog.Info("seed complete",
		"total_ingested", len(ingested),
		"total_embedded", embedded,
		"embeddings_in_catalog", inCatalog,
	)
	return 0
}

// seedOne resolves one query and upserts the best match, returning the
// ingested book with any stored reviews attached for embedding.
func seedOne(ctx context.Context, query string, resolver *metadata.Resolver, store catalog.Store) (*catalog.Book, error) {
	slog.Info("seeding book", "query", query)

	rec := resolver.Resolve(ctx, query)
	if rec == nil {
		slog.Warn("no results", "query", query)
		return nil, nil
	}

	book := &catalog.Book{
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
	if err := store.Upsert(ctx, book); err != nil {
		return nil, fmt.Errorf("upsert %q: %w", rec.Title, err)
	}
	slog.Info("book ingested", "title", book.Title, "id", book.ID)

	withReviews, err := store.LoadWithReviews(ctx, book.ID)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", rec.Title, err)
	}
	if withReviews == nil {
		withReviews = book
	}
	return withReviews, nil
}
