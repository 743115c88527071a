package vespa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

func TestFormatDense(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", FormatDense([]float32{0.5, -1, 0.25}))
	assert.Equal(t, "[]", FormatDense(nil))
}

func TestFormatTokens(t *testing.T) {
	got := FormatTokens([][]float32{{0.5, 0}, {1e-7, -2}})
	assert.Equal(t, "{{token:0,x:0}:0.5,{token:1,x:1}:-2}", got)
	assert.Equal(t, "{}", FormatTokens(nil))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{URL: "not a url"})
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestSearch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"root": {
				"id": "toplevel",
				"fields": {"totalCount": 42},
				"children": [
					{"id": "id:muvera:single_vector_document::7", "relevance": 0.91, "fields": {"id": "7", "title": "Manhattan"}},
					{"id": "id:muvera:single_vector_document::8", "relevance": 0.50, "fields": {}}
				]
			}
		}`))
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	res, err := c.Search(context.Background(), SearchRequest{
		YQL:     "select * from single_vector_document where true",
		Hits:    5,
		Ranking: "default",
		Query:   "manhattan project",
		Inputs:  map[string]string{"query(q_embedding)": "[1,0]"},
	})
	require.NoError(t, err)

	assert.Equal(t, "select * from single_vector_document where true", got["yql"])
	assert.Equal(t, float64(5), got["hits"])
	assert.Equal(t, "default", got["ranking"])
	assert.Equal(t, "manhattan project", got["query"])
	assert.Equal(t, "[1,0]", got["input.query(q_embedding)"])

	require.Len(t, res.Hits, 2)
	assert.Equal(t, int64(42), res.TotalCount)
	assert.Equal(t, Hit{ID: "7", Relevance: 0.91, Title: "Manhattan"}, res.Hits[0])
	assert.Equal(t, "8", res.Hits[1].ID)
}

func TestSearch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"vespa error", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"root": {"errors": [{"code": 4, "summary": "Invalid query parameter", "message": "bad rank profile"}]}}`))
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"root": `))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, err := New(Config{URL: srv.URL})
			require.NoError(t, err)

			_, err = c.Search(context.Background(), SearchRequest{YQL: "select * from d where true"})
			assert.Error(t, err)
		})
	}
}

func TestSearch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Search(ctx, SearchRequest{YQL: "select * from d where true"})
	assert.True(t, apperrors.IsTimeout(err), "got %v", err)
}

func TestSearch_RequiresYQL(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchRequest{})
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestStatus(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ApplicationStatus", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer up.Close()

	c, _ := New(Config{URL: up.URL})
	assert.NoError(t, c.Status(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	c, _ = New(Config{URL: down.URL})
	assert.Equal(t, apperrors.CodeUnavailable, apperrors.CodeOf(c.Status(context.Background())))
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "abc", documentID("x", map[string]any{"id": "abc"}))
	assert.Equal(t, "12", documentID("x", map[string]any{"id": float64(12)}))
	assert.Equal(t, "99", documentID("id:ns:doc::99", nil))
	assert.Equal(t, "raw", documentID("raw", nil))
}
