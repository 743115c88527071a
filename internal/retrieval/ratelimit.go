package retrieval

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// rateLimited waits on a shared limiter before every engine call.
type rateLimited struct {
	next    Adapter
	limiter *rate.Limiter
}

// NewLimiter returns a limiter allowing perSecond calls with the given
// burst, or nil when perSecond is not positive.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// RateLimited wraps an adapter with limiter. Several adapters may share one
// limiter to cap the total load on the engines. A nil limiter disables
// limiting.
func RateLimited(next Adapter, limiter *rate.Limiter) Adapter {
	if limiter == nil {
		return next
	}
	return &rateLimited{next: next, limiter: limiter}
}

func (r *rateLimited) Name() string { return r.next.Name() }

func (r *rateLimited) Search(ctx context.Context, q dataset.Query, maxResults int) ([]Hit, error) {
	// Wait fails early when the next token would arrive after the deadline.
	if err := r.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, apperrors.TimeoutError(r.next.Name()+" rate limit wait", err)
	}
	return r.next.Search(ctx, q, maxResults)
}
