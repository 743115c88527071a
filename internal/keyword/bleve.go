// Package keyword provides an in-process keyword index over the passage
// corpus, used as a local text-only baseline next to the engine strategies.
package keyword

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/asmuvera/muvera-eval/internal/dataset"
)

// batchSize bounds the number of passages indexed per bleve batch.
const batchSize = 1000

// Result is a single keyword hit.
type Result struct {
	ID    string
	Score float64
}

// document is the indexed form of a passage.
type document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Index is an in-memory Bleve index.
type Index struct {
	index bleve.Index
}

// newMapping indexes title and content with the standard analyzer
// (lowercase and tokenize, no stemming) and keeps id as a keyword.
func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)

	im.AddDocumentMapping("passage", docMapping)
	im.DefaultType = "passage"
	im.DefaultMapping = docMapping
	return im
}

// NewIndex builds an in-memory index over passages.
func NewIndex(passages []dataset.Passage) (*Index, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}

	idx := &Index{index: index}
	if err := idx.Add(passages); err != nil {
		_ = index.Close()
		return nil, err
	}
	return idx, nil
}

// LoadIndex reads a passages file and indexes it.
func LoadIndex(path string) (*Index, error) {
	passages, err := dataset.LoadPassages(path)
	if err != nil {
		return nil, err
	}
	return NewIndex(passages)
}

// Add indexes passages in batches.
func (i *Index) Add(passages []dataset.Passage) error {
	batch := i.index.NewBatch()
	for _, p := range passages {
		if err := batch.Index(p.ID, document{ID: p.ID, Title: p.Title, Content: p.Text}); err != nil {
			return fmt.Errorf("indexing passage %s: %w", p.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := i.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("Bleve batch failed: %w", err)
		}
	}
	return nil
}

// Count returns the number of indexed passages.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Search runs a match query over title and content and returns up to limit
// results in score order.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit

	results, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]Result, len(results.Hits))
	for n, hit := range results.Hits {
		out[n] = Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}
