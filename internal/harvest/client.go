// Package harvest pulls thesis metadata from DSpace repositories.
//
// The client pages through /rest/items with a polite request rate and
// flattens each record's Dublin Core metadata into a metadata.Item.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/andeslab/thesisrec/internal/metadata"
)

const (
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 100

	// RateLimit is 1 request per second. Institutional DSpace instances
	// are small and easily knocked over by aggressive crawling.
	RateLimit = 1.0

	itemsPath = "/rest/items"
)

// Client is a rate-limited harvester for a single DSpace repository.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	university string
	pageSize   int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPageSize sets the page size for item listing.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit overrides the request rate (requests per second).
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient creates a harvester for the repository at baseURL. Harvested
// items are tagged with the given university name.
func NewClient(baseURL, university string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    baseURL,
		university: university,
		pageSize:   DefaultPageSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Stats summarizes a completed harvest run.
type Stats struct {
	Pages   int `json:"pages"`
	Fetched int `json:"fetched"`
}

// Harvest pages through the repository until an empty page, handing each
// page of converted items to handle. A handler error aborts the run.
func (c *Client) Harvest(ctx context.Context, handle func([]metadata.Item) error) (*Stats, error) {
	stats := &Stats{}

	for offset := 0; ; offset += c.pageSize {
		records, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return stats, nil
		}

		items := make([]metadata.Item, 0, len(records))
		for _, rec := range records {
			items = append(items, rec.toItem(c.baseURL, c.university))
		}

		stats.Pages++
		stats.Fetched += len(items)

		if err := handle(items); err != nil {
			return nil, fmt.Errorf("handling page at offset %d: %w", offset, err)
		}
	}
}

// fetchPage fetches one page of items with expanded metadata.
func (c *Client) fetchPage(ctx context.Context, offset int) ([]dspaceRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s%s?expand=metadata&offset=%d&limit=%d",
		c.baseURL, itemsPath, offset, c.pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Repository: c.baseURL,
			Message:    fmt.Sprintf("HTTP %d at offset %d", resp.StatusCode, offset),
		}
	}

	var records []dspaceRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decoding page at offset %d: %v", ErrInvalidResponse, offset, err)
	}

	return records, nil
}
