package retrieval

import (
	"context"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/keyword"
)

// KeywordSearcher is the subset of the keyword index the adapter uses.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]keyword.Result, error)
}

type keywordAdapter struct {
	index KeywordSearcher
}

// NewLocalKeyword searches the in-process passage index.
func NewLocalKeyword(index KeywordSearcher) Adapter {
	return &keywordAdapter{index: index}
}

func (a *keywordAdapter) Name() string { return StrategyLocalKeyword }

func (a *keywordAdapter) Search(ctx context.Context, q dataset.Query, maxResults int) ([]Hit, error) {
	results, err := a.index.Search(ctx, q.Text, maxResults)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{DocID: r.ID, Score: r.Score}
	}
	return hits, nil
}
