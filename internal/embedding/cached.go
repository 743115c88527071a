package embedding

import (
	"context"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/pkg/hash"
)

// Cached decorates an Embedder with a cache keyed by a hash of the text.
type Cached struct {
	next  Embedder
	cache Cache
}

// NewCached wraps next with cache.
func NewCached(next Embedder, cache Cache) *Cached {
	return &Cached{next: next, cache: cache}
}

// Dim returns the dimension of the wrapped embedder.
func (c *Cached) Dim() int {
	return c.next.Dim()
}

// Embed serves from cache when possible.
func (c *Cached) Embed(ctx context.Context, q dataset.Query) (*Vectors, error) {
	key := hash.SHA256String(q.Text)
	if v, ok := c.cache.Get(ctx, key); ok {
		return v, nil
	}

	v, err := c.next.Embed(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, v)
	return v, nil
}
