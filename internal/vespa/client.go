// Package vespa is a small client for the Vespa search and status APIs.
package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// maxErrorBody bounds how much of a failed response is kept in errors.
const maxErrorBody = 512

// Config holds Vespa client configuration.
type Config struct {
	// URL is the container endpoint, e.g. http://localhost:8080.
	URL string
	// Timeout bounds every HTTP call.
	Timeout time.Duration
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		URL:     "http://localhost:8080",
		Timeout: 10 * time.Second,
	}
}

// Client talks to a Vespa container over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Vespa client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultConfig().URL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.ValidationError(fmt.Sprintf("invalid vespa url %q", cfg.URL))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    hc,
	}, nil
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string {
	return c.baseURL
}

// Search runs a query and returns hits in rank order.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.YQL == "" {
		return nil, apperrors.ValidationError("yql is required")
	}

	body := map[string]any{"yql": req.YQL}
	if req.Hits > 0 {
		body["hits"] = req.Hits
	}
	if req.Ranking != "" {
		body["ranking"] = req.Ranking
	}
	if req.Query != "" {
		body["query"] = req.Query
	}
	for name, value := range req.Inputs {
		body["input."+name] = value
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding vespa request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search/", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building vespa request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, "vespa search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperrors.New(apperrors.CodeUnavailable,
			fmt.Sprintf("vespa search failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, classify(ctx, "decoding vespa response", err)
	}
	if len(out.Root.Errors) > 0 {
		e := out.Root.Errors[0]
		return nil, apperrors.New(apperrors.CodeUnavailable,
			fmt.Sprintf("vespa error %d: %s: %s", e.Code, e.Summary, e.Message))
	}

	result := &SearchResult{
		Hits:       make([]Hit, 0, len(out.Root.Children)),
		TotalCount: out.Root.Fields.TotalCount,
	}
	for _, child := range out.Root.Children {
		hit := Hit{
			ID:        documentID(child.ID, child.Fields),
			Relevance: child.Relevance,
		}
		if title, ok := child.Fields["title"].(string); ok {
			hit.Title = title
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// Status checks /ApplicationStatus and returns nil when the container is up.
func (c *Client) Status(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ApplicationStatus", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, "vespa status", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return apperrors.ServiceUnavailableError(fmt.Sprintf("vespa (%s)", resp.Status))
	}
	return nil
}

// documentID prefers the "id" document field and falls back to the local
// part of the Vespa document id (id:namespace:type::local).
func documentID(hitID string, fields map[string]any) string {
	if v, ok := fields["id"]; ok {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id
			}
		case float64:
			return fmt.Sprintf("%.0f", id)
		}
	}
	if i := strings.LastIndex(hitID, "::"); i >= 0 {
		return hitID[i+2:]
	}
	return hitID
}

// classify turns transport failures into TIMEOUT or SERVICE_UNAVAILABLE.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.TimeoutError(op, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.TimeoutError(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeUnavailable, op+" failed", err)
}
