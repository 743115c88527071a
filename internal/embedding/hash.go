package embedding

import (
	"context"
	"math/rand"
	"strings"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/pkg/hash"
)

// Hash derives unit vectors from an MD5 seed of the text. It stands in for
// a model when no precomputed embeddings exist, so runs stay reproducible.
type Hash struct {
	dim int
}

// NewHash creates a hash embedder producing vectors of dim components.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = 128
	}
	return &Hash{dim: dim}
}

// Dim returns the vector dimension.
func (h *Hash) Dim() int {
	return h.dim
}

// Embed returns the dense vector of the whole text and one vector per
// lower-cased whitespace token.
func (h *Hash) Embed(ctx context.Context, q dataset.Query) (*Vectors, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := strings.Fields(strings.ToLower(q.Text))
	v := &Vectors{
		Dense:  h.vector(q.Text),
		Tokens: make([][]float32, 0, len(tokens)),
	}
	for _, tok := range tokens {
		v.Tokens = append(v.Tokens, h.vector(tok))
	}
	return v, nil
}

func (h *Hash) vector(text string) []float32 {
	rng := rand.New(rand.NewSource(hash.Seed(text)))
	v := make([]float32, h.dim)
	for i := range v {
		v[i] = rng.Float32()
	}
	normalize(v)
	return v
}
