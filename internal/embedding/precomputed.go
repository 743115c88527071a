package embedding

import (
	"context"
	"fmt"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// Precomputed serves vectors loaded from an embeddings file.
type Precomputed struct {
	store *dataset.Embeddings
}

// NewPrecomputed wraps loaded embeddings.
func NewPrecomputed(store *dataset.Embeddings) *Precomputed {
	return &Precomputed{store: store}
}

// LoadPrecomputed reads an embeddings file and checks its dimension.
// A dim of zero accepts whatever the file holds.
func LoadPrecomputed(path string, dim int) (*Precomputed, error) {
	store, err := dataset.LoadEmbeddings(path)
	if err != nil {
		return nil, err
	}
	if dim > 0 && store.Len() > 0 && store.Dim() != dim {
		return nil, apperrors.InputLoadError(path, 0,
			fmt.Errorf("embeddings have dim %d, configured %d", store.Dim(), dim))
	}
	return NewPrecomputed(store), nil
}

// Dim returns the dense dimension of the loaded vectors.
func (p *Precomputed) Dim() int {
	return p.store.Dim()
}

// Embed looks the query up by id, then by text.
func (p *Precomputed) Embed(ctx context.Context, q dataset.Query) (*Vectors, error) {
	rec, ok := p.store.ByID(q.ID)
	if !ok {
		rec, ok = p.store.ByText(q.Text)
	}
	if !ok {
		return nil, apperrors.NotFoundError(fmt.Sprintf("embedding for query %s", q.ID))
	}

	v := &Vectors{Dense: rec.Dense, Tokens: rec.Tokens}
	return v.clone(), nil
}
