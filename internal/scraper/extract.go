package scraper

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/liberhq/liber/internal/catalog"
)

const (
	// minReviewChars drops star-only or throwaway reviews.
	minReviewChars = 20

	// maxReviewChars caps stored review text.
	maxReviewChars = 2000
)

// extractGoodreadsReviews pulls up to max reviews out of a Goodreads book
// page. Goodreads ships two generations of review markup; both selector sets
// are tried.
func extractGoodreadsReviews(html string, max int) []catalog.Review {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Warn("parse goodreads page", "error", err)
		return nil
	}

	cards := doc.Find(".ReviewCard")
	if cards.Length() == 0 {
		cards = doc.Find("[data-testid='review']")
	}

	var reviews []catalog.Review
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if len(reviews) >= max {
			return false
		}

		textEl := firstOf(card, ".ReviewText__content span", ".reviewText")
		if textEl == nil {
			return true
		}
		text := strings.TrimSpace(textEl.Text())
		if len(text) <= minReviewChars {
			return true
		}
		if len(text) > maxReviewChars {
			text = text[:maxReviewChars]
		}

		review := catalog.Review{
			Source:     "goodreads",
			ReviewText: text,
			Rating:     parseStarRating(firstOf(card, ".RatingStars", ".staticStar")),
		}
		if reviewer := firstOf(card, ".ReviewerProfile__name", "a.user"); reviewer != nil {
			review.Reviewer = strings.TrimSpace(reviewer.Text())
		}
		reviews = append(reviews, review)
		return true
	})
	return reviews
}

// firstOf returns the first element matching any of the selectors in order,
// or nil when none match.
func firstOf(root *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if found := root.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// parseStarRating reads a rating from an aria-label like
// "Rating 4 out of 5". Returns nil when no numeric token is present.
func parseStarRating(el *goquery.Selection) *float64 {
	if el == nil {
		return nil
	}
	aria, ok := el.Attr("aria-label")
	if !ok {
		return nil
	}
	for _, token := range strings.Fields(aria) {
		if rating, err := strconv.ParseFloat(token, 64); err == nil {
			return &rating
		}
	}
	return nil
}
