package dtdd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dtddsync/internal/catalog"
	"dtddsync/internal/services"
)

const component = "dtdd"

// Catalog is the remote trigger catalog used by the enrichment pipeline.
// Lookups that find nothing return an empty result and a nil error.
type Catalog interface {
	SearchByExternalID(ctx context.Context, externalID string) ([]catalog.Candidate, error)
	SearchByTitle(ctx context.Context, title string) ([]catalog.Candidate, error)
	GetDetails(ctx context.Context, id int) (*catalog.Details, error)
}

// Client provides access to the DTDD API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ Catalog = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a DTDD client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "api key required", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "base url required", nil)
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SearchByTitle runs a free-text search.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]catalog.Candidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, component, "search", "title must not be empty", nil)
	}
	return c.search(ctx, url.Values{"q": {title}})
}

// SearchByExternalID searches by IMDb id. DTDD only indexes IMDb ids, so other
// identifiers return no candidates without a request.
func (c *Client) SearchByExternalID(ctx context.Context, externalID string) ([]catalog.Candidate, error) {
	externalID = strings.TrimSpace(externalID)
	if !IsIMDBID(externalID) {
		return nil, nil
	}
	return c.search(ctx, url.Values{"imdb": {externalID}})
}

// IsIMDBID reports whether id looks like an IMDb title id ("tt" + digits).
func IsIMDBID(id string) bool {
	if len(id) < 3 || !strings.EqualFold(id[:2], "tt") {
		return false
	}
	for _, r := range id[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Client) search(ctx context.Context, params url.Values) ([]catalog.Candidate, error) {
	var payload searchResponse
	found, err := c.get(ctx, "search", "/dddsearch", params, &payload)
	if err != nil || !found {
		return nil, err
	}
	out := make([]catalog.Candidate, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.ID <= 0 {
			continue
		}
		if item.NumRatings < 0 {
			return nil, services.Wrap(services.ErrMalformed, component, "search", fmt.Sprintf("item %d has negative rating count", item.ID), nil)
		}
		out = append(out, item.candidate())
	}
	return out, nil
}

// GetDetails fetches the per-topic vote tallies for a record. A record that
// does not exist yields nil details and a nil error.
func (c *Client) GetDetails(ctx context.Context, id int) (*catalog.Details, error) {
	if id <= 0 {
		return nil, services.Wrap(services.ErrValidation, component, "details", "record id must be positive", nil)
	}
	var payload detailResponse
	found, err := c.get(ctx, "details", "/media/"+strconv.Itoa(id), nil, &payload)
	if err != nil || !found {
		return nil, err
	}
	stats, err := rawStats(payload.TopicItemStats)
	if err != nil {
		return nil, services.Wrap(services.ErrMalformed, component, "details", fmt.Sprintf("record %d", id), err)
	}
	details := &catalog.Details{Stats: stats}
	if payload.Item != nil {
		details.Record = payload.Item.candidate()
	}
	if details.Record.ID == 0 {
		details.Record.ID = id
	}
	return details, nil
}

// get issues a GET and decodes the JSON body into out. found is false on 404.
func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out any) (bool, error) {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return false, services.Wrap(services.ErrConfiguration, component, operation, "parse url", err)
	}
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, component, operation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, err
		}
		return false, services.Wrap(services.ErrTransient, component, operation, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, services.Wrap(services.ErrConfiguration, component, operation, fmt.Sprintf("api key rejected (status %d)", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, services.Wrap(services.ErrTransient, component, operation, fmt.Sprintf("status %d (latency=%v)", resp.StatusCode, latency), nil)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, services.Wrap(services.ErrValidation, component, operation, fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, services.Wrap(services.ErrMalformed, component, operation, "decode response", err)
	}
	return true, nil
}
