// Package qdrant wraps the Qdrant Go client with the read-only search
// operations the evaluation strategies need.
package qdrant

// SearchRequest defines parameters for a vector search.
type SearchRequest struct {
	// DenseVector is the pooled query embedding.
	DenseVector []float32

	// MultiVector holds one embedding per query token for MaxSim scoring.
	MultiVector [][]float32

	// Limit is the maximum number of results to return.
	Limit uint64

	// PrefetchLimit is the number of candidates each retriever contributes
	// to a fused query.
	PrefetchLimit uint64

	// ScoreThreshold filters results below this score.
	ScoreThreshold *float32
}

// SearchResult represents a single search result.
type SearchResult struct {
	// ID is the document identifier: the "doc_id" or "id" payload field
	// when present, else the point id.
	ID string

	// Score is the relevance score.
	Score float32

	// Title is the optional "title" payload field.
	Title string
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string

	// PointsCount is the total number of points.
	PointsCount uint64

	// Status is the collection health status.
	Status string

	// SegmentsCount is the number of segments.
	SegmentsCount uint64

	// Vectors lists the named vectors the collection defines.
	Vectors []string
}
