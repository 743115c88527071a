package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/evaluation"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
)

type fixedAdapter struct{}

func (fixedAdapter) Name() string { return retrieval.StrategySingleVector }

func (fixedAdapter) Search(context.Context, dataset.Query, int) ([]retrieval.Hit, error) {
	return []retrieval.Hit{{DocID: "d1", Score: 2}, {DocID: "d2", Score: 1}}, nil
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	h := evaluation.NewHandler(evaluation.HandlerConfig{
		Options:  evaluation.DefaultOptions(),
		Adapters: []retrieval.Adapter{fixedAdapter{}},
		Log:      logger.Discard(),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "http://localhost:8090" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8090")
	}
	if cfg.Timeout != 10*time.Minute {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 10*time.Minute)
	}
}

func TestClientNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := New(Config{})
		if c.baseURL != "http://localhost:8090" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:8090")
		}
	})

	t.Run("trailing slash", func(t *testing.T) {
		c := New(Config{BaseURL: "http://custom:9000/"})
		if c.baseURL != "http://custom:9000" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://custom:9000")
		}
	})
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/healthz")
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want %q", r.Method, http.MethodGet)
		}
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Version: "1.0.0"})
	}))
	defer server.Close()

	resp, err := New(Config{BaseURL: server.URL}).Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "1.0.0" {
		t.Errorf("Health() = %+v", resp)
	}
}

func TestClientEvaluateAndRuns(t *testing.T) {
	srv := newAPI(t)
	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	run, err := c.Evaluate(ctx, evaluation.EvaluateRequest{
		Queries:   []evaluation.QueryInput{{ID: "q1", Text: "first"}},
		Judgments: []evaluation.JudgmentInput{{QueryID: "q1", DocID: "d1", Relevance: evaluation.Grade(2)}},
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(run.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(run.Records))
	}
	if got := run.Records[0].Metrics["ndcg@1"]; got != 1 {
		t.Errorf("ndcg@1 = %v, want 1", got)
	}
	if len(run.Summaries) != 1 || run.Summaries[0].Strategy != retrieval.StrategySingleVector {
		t.Errorf("summaries = %+v", run.Summaries)
	}

	runs, err := c.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("ListRuns() = %+v, want run %s", runs, run.ID)
	}

	got, err := c.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.ID != run.ID || len(got.Records) != 1 {
		t.Errorf("GetRun() = %+v", got)
	}
}

func TestClientStrategies(t *testing.T) {
	c := New(Config{BaseURL: newAPI(t).URL})

	strategies, err := c.Strategies(context.Background())
	if err != nil {
		t.Fatalf("Strategies() error = %v", err)
	}
	enabled := 0
	for _, s := range strategies {
		if s.Enabled {
			enabled++
			if s.Name != retrieval.StrategySingleVector {
				t.Errorf("unexpected enabled strategy %q", s.Name)
			}
		}
	}
	if enabled != 1 {
		t.Errorf("enabled strategies = %d, want 1", enabled)
	}
}

func TestClientLoadJudgments(t *testing.T) {
	c := New(Config{BaseURL: newAPI(t).URL})
	ctx := context.Background()

	if err := c.LoadJudgments(ctx, []evaluation.JudgmentInput{{QueryID: "q1", DocID: "d2", Relevance: evaluation.Grade(1)}}); err != nil {
		t.Fatalf("LoadJudgments() error = %v", err)
	}

	run, err := c.Evaluate(ctx, evaluation.EvaluateRequest{Queries: []evaluation.QueryInput{{ID: "q1", Text: "first"}}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := run.Records[0].Metrics["mrr"]; got != 0.5 {
		t.Errorf("mrr = %v, want 0.5", got)
	}
}

func TestClientAPIError(t *testing.T) {
	c := New(Config{BaseURL: newAPI(t).URL})

	_, err := c.Evaluate(context.Background(), evaluation.EvaluateRequest{
		Queries:    []evaluation.QueryInput{{ID: "q1", Text: "first"}},
		Strategies: []string{"no_such_strategy"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want %q", apiErr.Code, "NOT_FOUND")
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", apiErr.Status, http.StatusNotFound)
	}
}

func TestClientNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL}).Health(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if _, ok := err.(*APIError); ok {
		t.Error("plain text errors should not decode as APIError")
	}
}

func TestClientConnectionError(t *testing.T) {
	c := New(Config{
		BaseURL: "http://localhost:99999", // Invalid port
		Timeout: 1 * time.Second,
	})

	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestConversions(t *testing.T) {
	queries := QueryInputs([]dataset.Query{{ID: "q1", Text: "first"}})
	if len(queries) != 1 || queries[0].ID != "q1" || queries[0].Text != "first" {
		t.Errorf("QueryInputs() = %+v", queries)
	}

	j := dataset.NewJudgments()
	_ = j.Add("q1", "d1", 2)
	_ = j.Add("q2", "d9", 1)

	all := JudgmentInputs(j)
	if len(all) != 2 {
		t.Fatalf("JudgmentInputs() = %d entries, want 2", len(all))
	}
	some := JudgmentInputs(j, "q2")
	if len(some) != 1 || some[0].DocID != "d9" || *some[0].Relevance != 1 {
		t.Errorf("JudgmentInputs(q2) = %+v", some)
	}
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{Code: "TEST_ERROR", Message: "test message"}
	if err.Error() != "TEST_ERROR: test message" {
		t.Errorf("Error() = %q", err.Error())
	}
}
