package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dtddsync/internal/config"
	"dtddsync/internal/services"
)

const (
	component   = "jellyfin"
	itemFields  = "Tags,ProviderIds,ProductionYear,ParentId"
	defaultPage = 200
)

// Library is the host catalog whose tags are reconciled.
type Library interface {
	ListItems(ctx context.Context, opts ListOptions) ([]Item, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	UpdateItem(ctx context.Context, id string, update Update) error
}

// ListOptions selects which item kinds ListItems returns.
type ListOptions struct {
	IncludeMovies  bool
	IncludeSeries  bool
	IncludeSeasons bool
	PageSize       int
}

// Update is the write-back for one item. An empty DTDDID leaves the provider
// id untouched.
type Update struct {
	Tags   []string
	DTDDID string
}

// HTTPDoer describes the HTTP client used by the Jellyfin library.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the HTTP-backed Library.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

var _ Library = (*Client)(nil)

// NewClient constructs an HTTP-backed Jellyfin library.
func NewClient(baseURL, apiKey string, client HTTPDoer) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	apiKey = strings.TrimSpace(apiKey)
	if baseURL == "" || apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "url and api key required", nil)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, client: client}, nil
}

// NewConfiguredLibrary returns the library described by cfg.
func NewConfiguredLibrary(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "config required", nil)
	}
	return NewClient(cfg.Jellyfin.URL, cfg.Jellyfin.APIKey, nil)
}

// ListOptionsFromConfig builds the scheduled sync selection from cfg.
func ListOptionsFromConfig(cfg *config.Config) ListOptions {
	return ListOptions{
		IncludeMovies:  cfg.Jellyfin.IncludeMovies,
		IncludeSeries:  cfg.Jellyfin.IncludeSeries,
		IncludeSeasons: cfg.Jellyfin.IncludeSeasons,
	}
}

type itemsResponse struct {
	Items            []map[string]any `json:"Items"`
	TotalRecordCount int              `json:"TotalRecordCount"`
}

// ListItems pages through every matching item in the library.
func (c *Client) ListItems(ctx context.Context, opts ListOptions) ([]Item, error) {
	var types []string
	if opts.IncludeMovies {
		types = append(types, "Movie")
	}
	if opts.IncludeSeries {
		types = append(types, "Series")
	}
	if opts.IncludeSeasons {
		types = append(types, "Season")
	}
	if len(types) == 0 {
		return nil, nil
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPage
	}

	var out []Item
	for start := 0; ; start += pageSize {
		params := url.Values{
			"Recursive":        {"true"},
			"IncludeItemTypes": {strings.Join(types, ",")},
			"Fields":           {itemFields},
			"StartIndex":       {strconv.Itoa(start)},
			"Limit":            {strconv.Itoa(pageSize)},
		}
		page, err := c.fetchItems(ctx, "list items", params)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			out = append(out, itemFromRaw(raw))
		}
		if len(page.Items) < pageSize || start+len(page.Items) >= page.TotalRecordCount {
			return out, nil
		}
	}
}

// GetItem fetches one item. A missing item is reported with services.ErrNotFound.
func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	raw, err := c.rawItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item := itemFromRaw(raw)
	return &item, nil
}

// UpdateItem replaces the item's tags and, when set, its DTDD provider id.
// The full item is re-posted because Jellyfin resets omitted fields.
func (c *Client) UpdateItem(ctx context.Context, id string, update Update) error {
	raw, err := c.rawItem(ctx, id)
	if err != nil {
		return err
	}
	tags := update.Tags
	if tags == nil {
		tags = []string{}
	}
	raw["Tags"] = tags
	if update.DTDDID != "" {
		providers, _ := raw["ProviderIds"].(map[string]any)
		if providers == nil {
			providers = map[string]any{}
		}
		providers[ProviderDTDD] = update.DTDDID
		raw["ProviderIds"] = providers
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return services.Wrap(services.ErrValidation, component, "update item", "encode item", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/Items/"+url.PathEscape(id), nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req, "update item")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) rawItem(ctx context.Context, id string) (map[string]any, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, component, "get item", "item id required", nil)
	}
	page, err := c.fetchItems(ctx, "get item", url.Values{"ids": {id}, "Fields": {itemFields}})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, services.Wrap(services.ErrNotFound, component, "get item", "item "+id, nil)
	}
	return page.Items[0], nil
}

func (c *Client) fetchItems(ctx context.Context, operation string, params url.Values) (*itemsResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/Items", params, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, operation)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload itemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrMalformed, component, operation, "decode response", err)
	}
	return &payload, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "build request", path, err)
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, operation string) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, component, operation, "request failed", err)
	}
	if resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}
	resp.Body.Close()
	var marker error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		marker = services.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		marker = services.ErrConfiguration
	case resp.StatusCode >= 500:
		marker = services.ErrTransient
	default:
		marker = services.ErrValidation
	}
	return nil, services.Wrap(marker, component, operation, fmt.Sprintf("jellyfin returned %d", resp.StatusCode), nil)
}
