// Package scraper collects reader reviews from Goodreads with a headless
// browser. Reviews are enrichment only: every failure path degrades to an
// empty result after logging, never to an error the pipeline has to handle.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/liberhq/liber/internal/catalog"
	"github.com/liberhq/liber/internal/observe"
)

const (
	goodreadsSearchURL = "https://www.goodreads.com/search?q="

	// scrapeAttempts bounds browser retries. Page loads fail transiently
	// often enough that one retry pays for itself.
	scrapeAttempts = 2
)

// FetchFunc renders the review page for a search query and returns its HTML.
// Tests substitute a fixture-backed implementation.
type FetchFunc func(ctx context.Context, query string) (string, error)

// Scraper drives a headless browser against Goodreads search and extracts
// reviews from the first matching book page.
type Scraper struct {
	fetch      FetchFunc
	rateLimit  time.Duration
	timeout    time.Duration
	maxReviews int
	metrics    *observe.Metrics
}

// Option configures a [Scraper].
type Option func(*Scraper)

// WithFetchFunc replaces the browser-backed page fetch.
func WithFetchFunc(fn FetchFunc) Option {
	return func(s *Scraper) { s.fetch = fn }
}

// WithMetrics enables the scraped-review counter.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// New creates a Scraper. rateLimit is the settle time between navigations,
// timeout bounds a whole browser session, maxReviews caps extraction.
func New(rateLimit, timeout time.Duration, maxReviews int, opts ...Option) *Scraper {
	s := &Scraper{
		rateLimit:  rateLimit,
		timeout:    timeout,
		maxReviews: maxReviews,
	}
	s.fetch = s.fetchWithBrowser
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeReviews returns reviews for a book, searching by title and optional
// author. Failures are logged and yield an empty slice.
func (s *Scraper) ScrapeReviews(ctx context.Context, title, author string) []catalog.Review {
	query := title
	if author != "" {
		query = title + " " + author
	}

	var html string
	var err error
	for attempt := 0; attempt < scrapeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.rateLimit):
			case <-ctx.Done():
				slog.Warn("review scrape cancelled", "book", title, "error", ctx.Err())
				return nil
			}
		}
		html, err = s.fetch(ctx, query)
		if err == nil {
			break
		}
	}
	if err != nil {
		slog.Error("review scrape failed", "book", title, "error", err)
		return nil
	}

	reviews := extractGoodreadsReviews(html, s.maxReviews)
	if s.metrics != nil && len(reviews) > 0 {
		s.metrics.ReviewsScraped.Add(ctx, int64(len(reviews)))
	}
	slog.Info("reviews scraped", "book", title, "count", len(reviews))
	return reviews
}

// fetchWithBrowser navigates Goodreads search, follows the first book link,
// and returns the rendered page HTML.
func (s *Scraper) fetchWithBrowser(ctx context.Context, query string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, s.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(goodreadsSearchURL+url.QueryEscape(query)),
		chromedp.WaitReady("body"),
		chromedp.Click(`a.bookTitle, [class*="bookTitle"]`, chromedp.NodeVisible),
		// Let the book page's script-rendered review widgets settle.
		chromedp.Sleep(s.rateLimit),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("scraper: render goodreads page for %q: %w", query, err)
	}
	return html, nil
}
