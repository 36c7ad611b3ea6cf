package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultGoogleBooksBaseURL = "https://www.googleapis.com/books/v1"

// GoogleBooks queries the Google Books volumes API. It is the fallback
// source behind Open Library.
type GoogleBooks struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Source = (*GoogleBooks)(nil)

// GoogleBooksOption configures a [GoogleBooks] client.
type GoogleBooksOption func(*GoogleBooks)

// WithGoogleBooksBaseURL overrides the API base URL, e.g. for tests.
func WithGoogleBooksBaseURL(base string) GoogleBooksOption {
	return func(gb *GoogleBooks) { gb.baseURL = base }
}

// WithGoogleBooksHTTPClient overrides the HTTP client.
func WithGoogleBooksHTTPClient(c *http.Client) GoogleBooksOption {
	return func(gb *GoogleBooks) { gb.client = c }
}

// NewGoogleBooks creates a client. apiKey may be empty; the volumes API
// accepts unauthenticated requests at a lower quota.
func NewGoogleBooks(apiKey string, timeout time.Duration, rps float64, opts ...GoogleBooksOption) *GoogleBooks {
	gb := &GoogleBooks{
		baseURL: defaultGoogleBooksBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// Name implements [Source].
func (gb *GoogleBooks) Name() string { return SourceGoogleBooks }

type volumeIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type volumeInfo struct {
	Title               string             `json:"title"`
	Authors             []string           `json:"authors"`
	Categories          []string           `json:"categories"`
	Description         string             `json:"description"`
	IndustryIdentifiers []volumeIdentifier `json:"industryIdentifiers"`
	ImageLinks          struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"imageLinks"`
	PublishedDate string   `json:"publishedDate"`
	PageCount     *int     `json:"pageCount"`
	AverageRating *float64 `json:"averageRating"`
}

type volumesResponse struct {
	Items []struct {
		ID         string     `json:"id"`
		VolumeInfo volumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

// Search implements [Source].
func (gb *GoogleBooks) Search(ctx context.Context, query string, limit int) ([]ExternalRecord, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(limit))
	if gb.apiKey != "" {
		params.Set("key", gb.apiKey)
	}

	var resp volumesResponse
	err := withRetry(ctx, func() error {
		return gb.getJSON(ctx, gb.baseURL+"/volumes?"+params.Encode(), &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("metadata: google books search %q: %w", query, err)
	}

	records := make([]ExternalRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		vol := item.VolumeInfo
		rec := ExternalRecord{
			Title:         vol.Title,
			Authors:       vol.Authors,
			Subjects:      vol.Categories,
			Description:   vol.Description,
			GoogleBooksID: item.ID,
			CoverURL:      vol.ImageLinks.Thumbnail,
			PublishYear:   parseYear(vol.PublishedDate),
			PageCount:     vol.PageCount,
			AverageRating: vol.AverageRating,
			Source:        SourceGoogleBooks,
		}
		for _, id := range vol.IndustryIdentifiers {
			switch id.Type {
			case "ISBN_13":
				rec.ISBN13 = id.Identifier
			case "ISBN_10":
				rec.ISBN10 = id.Identifier
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (gb *GoogleBooks) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := gb.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := gb.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, url: rawURL}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
