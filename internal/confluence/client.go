// Package confluence fetches requirement pages over the Confluence
// REST API. Pages come back in storage format (the XHTML dialect the
// markup package understands) together with the labels that carry the
// page's requirement type and service code.
package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound reports a page id the Confluence instance does not know.
var ErrNotFound = errors.New("confluence: page not found")

// Label conventions: "type:<requirement type>", "service:<code>" and
// the bare "platform" marker.
const (
	labelTypePrefix    = "type:"
	labelServicePrefix = "service:"
	labelPlatform      = "platform"
)

// Page is an immutable snapshot of a Confluence page.
type Page struct {
	ID              string
	Title           string
	Body            string
	RequirementType string
	ServiceCode     string
	Platform        bool
}

// Client talks to one Confluence instance. Requests are rate limited
// and successful page fetches are cached with a TTL.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	cache   *pageCache
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithCacheTTL sets how long fetched pages stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = newPageCache(ttl) }
}

// New creates a Client for the instance at baseURL using a bearer
// token.
func New(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		cache:   newPageCache(5 * time.Minute),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type pageResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Metadata struct {
		Labels struct {
			Results []struct {
				Name string `json:"name"`
			} `json:"results"`
		} `json:"labels"`
	} `json:"metadata"`
}

// GetPage fetches a page with its storage body and labels. Cached
// entries are served until their TTL expires.
func (c *Client) GetPage(ctx context.Context, pageID string) (Page, error) {
	if page, ok := c.cache.get(pageID); ok {
		return page, nil
	}

	var resp pageResponse
	path := fmt.Sprintf("/rest/api/content/%s?expand=body.storage,metadata.labels", url.PathEscape(pageID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return Page{}, err
	}

	page := Page{
		ID:    resp.ID,
		Title: resp.Title,
		Body:  resp.Body.Storage.Value,
	}
	for _, l := range resp.Metadata.Labels.Results {
		switch {
		case strings.HasPrefix(l.Name, labelTypePrefix):
			page.RequirementType = strings.TrimPrefix(l.Name, labelTypePrefix)
		case strings.HasPrefix(l.Name, labelServicePrefix):
			page.ServiceCode = strings.TrimPrefix(l.Name, labelServicePrefix)
		case l.Name == labelPlatform:
			page.Platform = true
		}
	}

	c.cache.put(pageID, page)
	c.logger.Debug("page fetched", "page_id", pageID, "title", page.Title,
		"requirement_type", page.RequirementType, "service_code", page.ServiceCode)
	return page, nil
}

type childrenResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
	Size  int `json:"size"`
	Limit int `json:"limit"`
	Start int `json:"start"`
}

// ChildPageIDs returns the ids of all descendants of a page, depth
// first.
func (c *Client) ChildPageIDs(ctx context.Context, pageID string) ([]string, error) {
	var out []string
	var walk func(id string) error
	walk = func(id string) error {
		start := 0
		for {
			var resp childrenResponse
			path := fmt.Sprintf("/rest/api/content/%s/child/page?limit=50&start=%d", url.PathEscape(id), start)
			if err := c.getJSON(ctx, path, &resp); err != nil {
				return err
			}
			for _, child := range resp.Results {
				out = append(out, child.ID)
				if err := walk(child.ID); err != nil {
					return err
				}
			}
			if len(resp.Results) < 50 {
				return nil
			}
			start += len(resp.Results)
		}
	}
	if err := walk(pageID); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("confluence request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("confluence request %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode confluence response: %w", err)
	}
	return nil
}
