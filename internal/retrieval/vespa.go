package retrieval

import (
	"context"
	"fmt"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/embedding"
	"github.com/asmuvera/muvera-eval/internal/vespa"
)

// VespaSearcher is the subset of the Vespa client the adapters use.
type VespaSearcher interface {
	Search(ctx context.Context, req vespa.SearchRequest) (*vespa.SearchResult, error)
}

// VespaOptions names the schemas and rank profile queried on Vespa.
type VespaOptions struct {
	SingleSchema string
	MultiSchema  string
	RankProfile  string
}

// DefaultVespaOptions returns the schema names of the reference deployment.
func DefaultVespaOptions() VespaOptions {
	return VespaOptions{
		SingleSchema: "single_vector_document",
		MultiSchema:  "multi_vector_document",
		RankProfile:  "default",
	}
}

type vespaMode int

const (
	vespaSingle vespaMode = iota
	vespaMulti
	vespaText
	vespaHybrid
)

// vespaAdapter runs one of the Vespa strategies.
type vespaAdapter struct {
	name     string
	mode     vespaMode
	client   VespaSearcher
	embedder embedding.Embedder
	opts     VespaOptions
}

// NewVespaSingleVector ranks single_vector documents by the pooled query
// embedding.
func NewVespaSingleVector(client VespaSearcher, embedder embedding.Embedder, opts VespaOptions) Adapter {
	return &vespaAdapter{name: StrategySingleVector, mode: vespaSingle, client: client, embedder: embedder, opts: opts}
}

// NewVespaMultiVector ranks multi_vector documents by MaxSim over the query
// token embeddings.
func NewVespaMultiVector(client VespaSearcher, embedder embedding.Embedder, opts VespaOptions) Adapter {
	return &vespaAdapter{name: StrategyMultiVector, mode: vespaMulti, client: client, embedder: embedder, opts: opts}
}

// NewVespaText ranks documents matching the query text with the bm25 profile.
func NewVespaText(client VespaSearcher, opts VespaOptions) Adapter {
	return &vespaAdapter{name: StrategyTextOnly, mode: vespaText, client: client, opts: opts}
}

// NewVespaHybrid ranks single_vector documents with the hybrid profile,
// which combines the query embedding with text features.
func NewVespaHybrid(client VespaSearcher, embedder embedding.Embedder, opts VespaOptions) Adapter {
	return &vespaAdapter{name: StrategyHybrid, mode: vespaHybrid, client: client, embedder: embedder, opts: opts}
}

func (a *vespaAdapter) Name() string { return a.name }

func (a *vespaAdapter) Search(ctx context.Context, q dataset.Query, maxResults int) ([]Hit, error) {
	req, err := a.request(ctx, q, maxResults)
	if err != nil {
		return nil, err
	}

	res, err := a.client.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = Hit{DocID: h.ID, Score: h.Relevance}
	}
	return hits, nil
}

func (a *vespaAdapter) request(ctx context.Context, q dataset.Query, maxResults int) (vespa.SearchRequest, error) {
	req := vespa.SearchRequest{Hits: maxResults, Ranking: a.opts.RankProfile}

	switch a.mode {
	case vespaText:
		req.YQL = fmt.Sprintf("select * from %s where userQuery()", a.opts.SingleSchema)
		req.Query = q.Text
		req.Ranking = "bm25"
		return req, nil

	case vespaSingle, vespaHybrid:
		v, err := a.embedder.Embed(ctx, q)
		if err != nil {
			return req, err
		}
		req.YQL = fmt.Sprintf("select * from %s where true", a.opts.SingleSchema)
		req.Inputs = map[string]string{"query(q_embedding)": vespa.FormatDense(v.Dense)}
		if a.mode == vespaHybrid {
			req.Ranking = "hybrid"
			req.Query = q.Text
		}
		return req, nil

	case vespaMulti:
		v, err := a.embedder.Embed(ctx, q)
		if err != nil {
			return req, err
		}
		if len(v.Tokens) == 0 {
			return req, fmt.Errorf("query %s has no token embeddings", q.ID)
		}
		req.YQL = fmt.Sprintf("select * from %s where true", a.opts.MultiSchema)
		req.Inputs = map[string]string{"query(q_token_embeddings)": vespa.FormatTokens(v.Tokens)}
		return req, nil
	}

	return req, fmt.Errorf("unknown vespa mode %d", a.mode)
}
