package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

const (
	defaultLimit         = 20
	defaultPrefetchLimit = 100
)

// DenseSearch ranks points by similarity to the pooled query vector.
func (c *Client) DenseSearch(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	if len(req.DenseVector) == 0 {
		return nil, fmt.Errorf("dense vector is required")
	}

	return c.query(ctx, "dense search", &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(req.DenseVector),
		Using:          qdrant.PtrOf(c.config.DenseVector),
		Limit:          qdrant.PtrOf(limitOr(req.Limit, defaultLimit)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: req.ScoreThreshold,
	})
}

// MultiVectorSearch ranks points by late-interaction MaxSim between the
// query token vectors and each document's token vectors.
func (c *Client) MultiVectorSearch(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	if len(req.MultiVector) == 0 {
		return nil, fmt.Errorf("multi vector is required")
	}

	return c.query(ctx, "multi-vector search", &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryMulti(req.MultiVector),
		Using:          qdrant.PtrOf(c.config.MultiVector),
		Limit:          qdrant.PtrOf(limitOr(req.Limit, defaultLimit)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: req.ScoreThreshold,
	})
}

// HybridSearch prefetches dense and multi-vector candidates and fuses them
// with reciprocal rank fusion.
func (c *Client) HybridSearch(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	prefetchLimit := limitOr(req.PrefetchLimit, defaultPrefetchLimit)
	prefetch := make([]*qdrant.PrefetchQuery, 0, 2)

	if len(req.DenseVector) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQueryDense(req.DenseVector),
			Using: qdrant.PtrOf(c.config.DenseVector),
			Limit: qdrant.PtrOf(prefetchLimit),
		})
	}
	if len(req.MultiVector) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQueryMulti(req.MultiVector),
			Using: qdrant.PtrOf(c.config.MultiVector),
			Limit: qdrant.PtrOf(prefetchLimit),
		})
	}
	if len(prefetch) == 0 {
		return nil, fmt.Errorf("at least one of dense or multi vector must be provided")
	}

	return c.query(ctx, "hybrid search", &qdrant.QueryPoints{
		CollectionName: collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:          qdrant.PtrOf(limitOr(req.Limit, defaultLimit)),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: req.ScoreThreshold,
	})
}

func (c *Client) query(ctx context.Context, op string, q *qdrant.QueryPoints) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, errClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	points, err := c.client.Query(ctx, q)
	if err != nil {
		return nil, classify(ctx, op, err)
	}

	return scoredPointsToResults(points), nil
}

func limitOr(v, def uint64) uint64 {
	if v == 0 {
		return def
	}
	return v
}

// scoredPointsToResults converts Qdrant scored points to SearchResults.
func scoredPointsToResults(points []*qdrant.ScoredPoint) []SearchResult {
	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, scoredPointToResult(p))
	}
	return results
}

// scoredPointToResult converts a single scored point to SearchResult.
func scoredPointToResult(p *qdrant.ScoredPoint) SearchResult {
	id := getStringValue(p.Payload, "doc_id")
	if id == "" {
		id = getStringValue(p.Payload, "id")
	}
	if id == "" {
		id = pointID(p.Id)
	}

	return SearchResult{
		ID:    id,
		Score: p.Score,
		Title: getStringValue(p.Payload, "title"),
	}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

// getStringValue reads a string payload field. Integer values are
// rendered in decimal since passage ids are often stored as numbers.
func getStringValue(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return fmt.Sprintf("%d", kind.IntegerValue)
	}
	return ""
}
