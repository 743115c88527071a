// Package embedding supplies query vectors to the vector retrieval
// strategies. Model inference is not done here: vectors are either read
// from a precomputed file or derived deterministically from the query text.
package embedding

import (
	"context"
	"math"

	"github.com/asmuvera/muvera-eval/internal/dataset"
)

// Vectors is the representation of one query.
// Dense is a single pooled vector; Tokens holds one vector per token for
// late-interaction (MaxSim) scoring.
type Vectors struct {
	Dense  []float32   `json:"dense"`
	Tokens [][]float32 `json:"tokens,omitempty"`
}

// Embedder produces query vectors.
type Embedder interface {
	Embed(ctx context.Context, q dataset.Query) (*Vectors, error)
	Dim() int
}

// normalize scales v to unit length in place. Zero vectors are left as is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// clone deep-copies vectors so cached values cannot be mutated by callers.
func (v *Vectors) clone() *Vectors {
	if v == nil {
		return nil
	}
	out := &Vectors{Dense: append([]float32(nil), v.Dense...)}
	if v.Tokens != nil {
		out.Tokens = make([][]float32, len(v.Tokens))
		for i, tok := range v.Tokens {
			out.Tokens[i] = append([]float32(nil), tok...)
		}
	}
	return out
}
