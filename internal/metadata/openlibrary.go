package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultOpenLibraryBaseURL = "https://openlibrary.org"
	openLibraryCoverURLFormat = "https://covers.openlibrary.org/b/id/%d-L.jpg"

	// searchFields keeps Open Library responses small: only the document
	// fields the resolver maps are requested.
	searchFields = "key,title,author_name,subject,isbn,first_publish_year,cover_i,number_of_pages_median,ratings_average"

	maxSubjectsPerRecord = 20
)

// OpenLibrary queries the Open Library search and works APIs.
type OpenLibrary struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Source = (*OpenLibrary)(nil)

// OpenLibraryOption configures an [OpenLibrary] client.
type OpenLibraryOption func(*OpenLibrary)

// WithOpenLibraryBaseURL overrides the API base URL, e.g. for tests.
func WithOpenLibraryBaseURL(base string) OpenLibraryOption {
	return func(ol *OpenLibrary) { ol.baseURL = base }
}

// WithOpenLibraryHTTPClient overrides the HTTP client.
func WithOpenLibraryHTTPClient(c *http.Client) OpenLibraryOption {
	return func(ol *OpenLibrary) { ol.client = c }
}

// NewOpenLibrary creates a client with the given request timeout and rate
// limit (requests per second against openlibrary.org).
func NewOpenLibrary(timeout time.Duration, rps float64, opts ...OpenLibraryOption) *OpenLibrary {
	ol := &OpenLibrary{
		baseURL: defaultOpenLibraryBaseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
	for _, opt := range opts {
		opt(ol)
	}
	return ol
}

// Name implements [Source].
func (ol *OpenLibrary) Name() string { return SourceOpenLibrary }

// searchDoc is one document in an Open Library search response.
type searchDoc struct {
	Key                 string   `json:"key"`
	Title               string   `json:"title"`
	AuthorName          []string `json:"author_name"`
	Subject             []string `json:"subject"`
	ISBN                []string `json:"isbn"`
	FirstPublishYear    *int     `json:"first_publish_year"`
	CoverID             int64    `json:"cover_i"`
	NumberOfPagesMedian *float64 `json:"number_of_pages_median"`
	RatingsAverage      *float64 `json:"ratings_average"`
}

type searchResponse struct {
	Docs []searchDoc `json:"docs"`
}

// Search implements [Source]. Records are enriched with work descriptions
// where the works API has one; enrichment failures are logged and skipped.
func (ol *OpenLibrary) Search(ctx context.Context, query string, limit int) ([]ExternalRecord, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", searchFields)

	var resp searchResponse
	err := withRetry(ctx, func() error {
		return ol.getJSON(ctx, ol.baseURL+"/search.json?"+params.Encode(), &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("metadata: open library search %q: %w", query, err)
	}

	records := make([]ExternalRecord, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		rec := ExternalRecord{
			Title:          doc.Title,
			Authors:        doc.AuthorName,
			Subjects:       capStrings(doc.Subject, maxSubjectsPerRecord),
			ISBN13:         firstISBN13(doc.ISBN),
			ISBN10:         firstISBN10(doc.ISBN),
			OpenLibraryKey: doc.Key,
			PublishYear:    doc.FirstPublishYear,
			AverageRating:  doc.RatingsAverage,
			Source:         SourceOpenLibrary,
		}
		if doc.CoverID > 0 {
			rec.CoverURL = fmt.Sprintf(openLibraryCoverURLFormat, doc.CoverID)
		}
		if doc.NumberOfPagesMedian != nil {
			pages := int(*doc.NumberOfPagesMedian)
			rec.PageCount = &pages
		}
		if rec.OpenLibraryKey != "" {
			desc, err := ol.Description(ctx, rec.OpenLibraryKey)
			if err != nil {
				slog.Warn("open library description lookup failed",
					"work_key", rec.OpenLibraryKey, "error", err)
			} else {
				rec.Description = desc
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// workResponse handles the two shapes Open Library uses for a description:
// a plain string or an object with a "value" field.
type workResponse struct {
	Description json.RawMessage `json:"description"`
}

// Description fetches the description of a work like "/works/OL123W".
// A missing work or absent description returns "" without error.
func (ol *OpenLibrary) Description(ctx context.Context, workKey string) (string, error) {
	var resp workResponse
	err := withRetry(ctx, func() error {
		reqErr := ol.getJSON(ctx, ol.baseURL+workKey+".json", &resp)
		if reqErr != nil && isNotFound(reqErr) {
			resp = workResponse{}
			return nil
		}
		return reqErr
	})
	if err != nil {
		return "", fmt.Errorf("metadata: open library work %s: %w", workKey, err)
	}
	if len(resp.Description) == 0 {
		return "", nil
	}

	var plain string
	if json.Unmarshal(resp.Description, &plain) == nil {
		return plain, nil
	}
	var typed struct {
		Value string `json:"value"`
	}
	if json.Unmarshal(resp.Description, &typed) == nil {
		return typed.Value, nil
	}
	return "", nil
}

// getJSON performs a rate-limited GET and decodes the JSON body into out.
func (ol *OpenLibrary) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := ol.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := ol.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, url: rawURL}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError is a non-2xx HTTP response.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.code, e.url)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func capStrings(in []string, max int) []string {
	if len(in) > max {
		return in[:max]
	}
	return in
}
