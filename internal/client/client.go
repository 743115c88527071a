// Package client provides an HTTP client for the muvera-eval API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/evaluation"
)

// Client is an HTTP client for the evaluation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// Timeout is the request timeout. Evaluations run inside the request,
	// so it must cover the longest run.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections. Zero means the default.
	MaxIdleConns int

	// IdleConnTimeout is how long an idle connection stays open.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8090",
		Timeout:         10 * time.Minute,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// APIError represents an API error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks if the API is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Strategies lists every known strategy and whether the server runs it.
func (c *Client) Strategies(ctx context.Context) ([]evaluation.StrategyStatus, error) {
	var resp struct {
		Strategies []evaluation.StrategyStatus `json:"strategies"`
	}
	if err := c.get(ctx, "/v1/evaluation/strategies", &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// Evaluate runs an evaluation on the server and returns the finished run.
func (c *Client) Evaluate(ctx context.Context, req evaluation.EvaluateRequest) (*evaluation.Run, error) {
	var run evaluation.Run
	if err := c.post(ctx, "/v1/evaluation/evaluate", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// LoadJudgments adds judgments to the server's store.
func (c *Client) LoadJudgments(ctx context.Context, judgments []evaluation.JudgmentInput) error {
	return c.post(ctx, "/v1/evaluation/judgments", judgments, nil)
}

// ListRuns returns the runs the server remembers, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]evaluation.RunInfo, error) {
	var resp struct {
		Runs []evaluation.RunInfo `json:"runs"`
	}
	if err := c.get(ctx, "/v1/evaluation/runs", &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun returns a finished run by id.
func (c *Client) GetRun(ctx context.Context, id string) (*evaluation.Run, error) {
	var run evaluation.Run
	if err := c.get(ctx, "/v1/evaluation/runs/"+url.PathEscape(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// QueryInputs converts loaded queries to request form.
func QueryInputs(queries []dataset.Query) []evaluation.QueryInput {
	out := make([]evaluation.QueryInput, len(queries))
	for i, q := range queries {
		out[i] = evaluation.QueryInput{ID: q.ID, Text: q.Text}
	}
	return out
}

// JudgmentInputs converts a judgment store to request form, limited to the
// given query ids when any are passed.
func JudgmentInputs(j *dataset.Judgments, queryIDs ...string) []evaluation.JudgmentInput {
	if len(queryIDs) == 0 {
		queryIDs = j.QueryIDs()
	}
	var out []evaluation.JudgmentInput
	for _, qid := range queryIDs {
		for _, jd := range j.ForQuery(qid).All() {
			out = append(out, evaluation.JudgmentInput{QueryID: qid, DocID: jd.DocID, Relevance: evaluation.Grade(jd.Grade)})
		}
	}
	return out
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// post performs a POST request.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return apiErr
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
