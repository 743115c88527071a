package dataset

import (
	"errors"
	"fmt"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// QueryEmbedding is a precomputed query representation.
// Dense is the pooled single vector; Tokens holds one vector per query token.
type QueryEmbedding struct {
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Dense  []float32   `json:"dense"`
	Tokens [][]float32 `json:"tokens"`
}

// Embeddings indexes precomputed embeddings by query id and by text.
type Embeddings struct {
	byID   map[string]*QueryEmbedding
	byText map[string]*QueryEmbedding
	dim    int
}

// ByID looks up an embedding by query id.
func (e *Embeddings) ByID(id string) (*QueryEmbedding, bool) {
	q, ok := e.byID[id]
	return q, ok
}

// ByText looks up an embedding by exact query text.
func (e *Embeddings) ByText(text string) (*QueryEmbedding, bool) {
	q, ok := e.byText[text]
	return q, ok
}

// Dim returns the dense dimension shared by every record.
func (e *Embeddings) Dim() int {
	return e.dim
}

// Len returns the number of loaded embeddings.
func (e *Embeddings) Len() int {
	return len(e.byID)
}

// LoadEmbeddings reads precomputed query embeddings from JSONL.
// Every record must carry a dense vector of the same dimension; token
// vectors are optional but must match that dimension when present.
func LoadEmbeddings(path string) (*Embeddings, error) {
	e := &Embeddings{
		byID:   make(map[string]*QueryEmbedding),
		byText: make(map[string]*QueryEmbedding),
	}

	err := eachLine(path, func(line string, n int) error {
		rec := &QueryEmbedding{}
		if err := decodeLine(path, n, line, rec); err != nil {
			return err
		}
		if rec.ID == "" {
			return apperrors.InputLoadError(path, n, errors.New("embedding id is empty"))
		}
		if len(rec.Dense) == 0 {
			return apperrors.InputLoadError(path, n, fmt.Errorf("embedding %s has no dense vector", rec.ID))
		}
		if e.dim == 0 {
			e.dim = len(rec.Dense)
		}
		if len(rec.Dense) != e.dim {
			return apperrors.InputLoadError(path, n,
				fmt.Errorf("embedding %s has dim %d, expected %d", rec.ID, len(rec.Dense), e.dim))
		}
		for i, tok := range rec.Tokens {
			if len(tok) != e.dim {
				return apperrors.InputLoadError(path, n,
					fmt.Errorf("embedding %s token %d has dim %d, expected %d", rec.ID, i, len(tok), e.dim))
			}
		}

		e.byID[rec.ID] = rec
		if rec.Text != "" {
			e.byText[rec.Text] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e, nil
}
