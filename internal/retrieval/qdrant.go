package retrieval

import (
	"context"
	"fmt"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/embedding"
	"github.com/asmuvera/muvera-eval/internal/qdrant"
)

// QdrantSearcher is the subset of the Qdrant client the adapters use.
type QdrantSearcher interface {
	DenseSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
	MultiVectorSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
	HybridSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
}

type qdrantMode int

const (
	qdrantDense qdrantMode = iota
	qdrantMulti
	qdrantHybrid
)

type qdrantAdapter struct {
	name       string
	mode       qdrantMode
	client     QdrantSearcher
	embedder   embedding.Embedder
	collection string
}

// NewQdrantDense searches the dense named vector.
func NewQdrantDense(client QdrantSearcher, embedder embedding.Embedder, collection string) Adapter {
	return &qdrantAdapter{name: StrategyQdrantDense, mode: qdrantDense, client: client, embedder: embedder, collection: collection}
}

// NewQdrantMulti searches the token multivector with MaxSim.
func NewQdrantMulti(client QdrantSearcher, embedder embedding.Embedder, collection string) Adapter {
	return &qdrantAdapter{name: StrategyQdrantMulti, mode: qdrantMulti, client: client, embedder: embedder, collection: collection}
}

// NewQdrantHybrid fuses dense and multivector candidates server side.
func NewQdrantHybrid(client QdrantSearcher, embedder embedding.Embedder, collection string) Adapter {
	return &qdrantAdapter{name: StrategyQdrantHybrid, mode: qdrantHybrid, client: client, embedder: embedder, collection: collection}
}

func (a *qdrantAdapter) Name() string { return a.name }

func (a *qdrantAdapter) Search(ctx context.Context, q dataset.Query, maxResults int) ([]Hit, error) {
	v, err := a.embedder.Embed(ctx, q)
	if err != nil {
		return nil, err
	}

	req := qdrant.SearchRequest{Limit: uint64(maxResults)}

	var results []qdrant.SearchResult
	switch a.mode {
	case qdrantDense:
		req.DenseVector = v.Dense
		results, err = a.client.DenseSearch(ctx, a.collection, req)
	case qdrantMulti:
		req.MultiVector = v.Tokens
		results, err = a.client.MultiVectorSearch(ctx, a.collection, req)
	case qdrantHybrid:
		req.DenseVector = v.Dense
		req.MultiVector = v.Tokens
		req.PrefetchLimit = uint64(maxResults * 4)
		results, err = a.client.HybridSearch(ctx, a.collection, req)
	default:
		return nil, fmt.Errorf("unknown qdrant mode %d", a.mode)
	}
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{DocID: r.ID, Score: float64(r.Score)}
	}
	return hits, nil
}
