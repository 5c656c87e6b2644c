// Package jira resolves analysis entry points: given an issue key, it
// fetches the issue description and extracts the Confluence page ids
// the issue links to.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound reports an unknown issue key.
var ErrNotFound = errors.New("jira: issue not found")

// Client talks to one Jira instance over its REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
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
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
	} `json:"fields"`
}

// Description fetches an issue's description text.
func (c *Client) Description(ctx context.Context, issueKey string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary,description", c.baseURL, url.PathEscape(issueKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("jira request %s: %w", issueKey, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("jira request %s: status %d: %s", issueKey, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var issue issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return "", fmt.Errorf("decode jira response: %w", err)
	}

	c.logger.Debug("issue fetched", "issue", issueKey, "description_length", len(issue.Fields.Description))
	return issue.Fields.Description, nil
}

// LinkedPageIDs fetches the issue description and returns the
// Confluence page ids it references, deduplicated in order of first
// appearance.
func (c *Client) LinkedPageIDs(ctx context.Context, issueKey string) ([]string, error) {
	description, err := c.Description(ctx, issueKey)
	if err != nil {
		return nil, err
	}
	return ExtractPageIDs(description), nil
}

var pageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pageId[=:]\s*(\d+)`),
	regexp.MustCompile(`/pages/(\d+)`),
}

// ExtractPageIDs scans text (issue descriptions, wiki markup, HTML)
// for Confluence page references. Short /x/ links need server-side
// resolution and are not supported.
func ExtractPageIDs(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, re := range pageIDPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			id := m[1]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
