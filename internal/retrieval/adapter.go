// Package retrieval defines the boundary between the evaluator and the
// search engines: every strategy is an Adapter returning a ranked list of
// document ids for a query.
package retrieval

import (
	"context"

	"github.com/asmuvera/muvera-eval/internal/dataset"
)

// Hit is one ranked document. Rank is the position in the slice plus one.
type Hit struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Adapter runs one retrieval strategy.
//
// Search returns at most maxResults hits in rank order. It may return
// fewer, and it never returns the same document twice.
type Adapter interface {
	Name() string
	Search(ctx context.Context, q dataset.Query, maxResults int) ([]Hit, error)
}

// DocIDs extracts document ids in rank order.
func DocIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	return ids
}

// Unique drops repeated document ids, keeping the first occurrence, and
// truncates to maxResults when maxResults is positive.
func Unique(hits []Hit, maxResults int) []Hit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.DocID]; dup {
			continue
		}
		seen[h.DocID] = struct{}{}
		out = append(out, h)
		if maxResults > 0 && len(out) == maxResults {
			break
		}
	}
	return out
}

// deduped enforces the no-duplicates contract on any adapter.
type deduped struct {
	next Adapter
}

// Dedup wraps an adapter so its results never repeat a document.
func Dedup(next Adapter) Adapter {
	if _, ok := next.(*deduped); ok {
		return next
	}
	return &deduped{next: next}
}

func (d *deduped) Name() string { return d.next.Name() }

func (d *deduped) Search(ctx context.Context, q dataset.Query, maxResults int) ([]Hit, error) {
	hits, err := d.next.Search(ctx, q, maxResults)
	if err != nil {
		return nil, err
	}
	return Unique(hits, maxResults), nil
}
