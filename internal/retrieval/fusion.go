package retrieval

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/asmuvera/muvera-eval/internal/dataset"
)

// Fusion methods.
const (
	FusionWeighted = "weighted"
	FusionRRF      = "rrf"
)

const (
	// DefaultRRFK is the RRF smoothing constant.
	// Higher values reduce the impact of rank position differences.
	DefaultRRFK = 60

	// fetchFactor widens each component's candidate list before fusing.
	fetchFactor = 2
)

// FusionConfig configures client-side fusion of two strategies.
type FusionConfig struct {
	// Method is "weighted" (score blend) or "rrf".
	Method string

	// SemanticWeight and KeywordWeight scale each component.
	// Defaults: 0.7 and 0.3.
	SemanticWeight float64
	KeywordWeight  float64

	// K is the RRF smoothing constant (default: 60).
	K int
}

// DefaultFusionConfig returns the weighted 0.7/0.3 blend.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Method:         FusionWeighted,
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
		K:              DefaultRRFK,
	}
}

// fusion merges the rankings of a semantic and a keyword adapter.
type fusion struct {
	semantic Adapter
	keyword  Adapter
	cfg      FusionConfig
}

// NewFusion combines two adapters into the "fusion" strategy. Both
// components are queried concurrently and a failure of either fails the
// call.
func NewFusion(semantic, keyword Adapter, cfg FusionConfig) Adapter {
	def := DefaultFusionConfig()
	if cfg.Method == "" {
		cfg.Method = def.Method
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.SemanticWeight == 0 && cfg.KeywordWeight == 0 {
		cfg.SemanticWeight = def.SemanticWeight
		cfg.KeywordWeight = def.KeywordWeight
	}
	return &fusion{semantic: semantic, keyword: keyword, cfg: cfg}
}

func (f *fusion) Name() string { return StrategyFusion }

func (f *fusion) Search(ctx context.Context, q dataset.Query, maxResults int) ([]Hit, error) {
	var semHits, kwHits []Hit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := f.semantic.Search(gctx, q, maxResults*fetchFactor)
		if err != nil {
			return fmt.Errorf("%s: %w", f.semantic.Name(), err)
		}
		semHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := f.keyword.Search(gctx, q, maxResults*fetchFactor)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keyword.Name(), err)
		}
		kwHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fused []Hit
	if f.cfg.Method == FusionRRF {
		fused = FuseRRF(semHits, kwHits, f.cfg.SemanticWeight, f.cfg.KeywordWeight, f.cfg.K)
	} else {
		fused = FuseWeighted(semHits, kwHits, f.cfg.SemanticWeight, f.cfg.KeywordWeight)
	}
	return Unique(fused, maxResults), nil
}

// accumulator sums per-document contributions, remembering the order in
// which documents were first seen so ties sort deterministically.
type accumulator struct {
	order  []string
	scores map[string]float64
}

func newAccumulator(n int) *accumulator {
	return &accumulator{order: make([]string, 0, n), scores: make(map[string]float64, n)}
}

func (a *accumulator) add(id string, v float64) {
	if _, ok := a.scores[id]; !ok {
		a.order = append(a.order, id)
	}
	a.scores[id] += v
}

func (a *accumulator) hits() []Hit {
	out := make([]Hit, len(a.order))
	for i, id := range a.order {
		out[i] = Hit{DocID: id, Score: a.scores[id]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// FuseWeighted blends scores as semW*semantic + kwW*keyword. Each list is
// first divided by its own maximum score because engines score on
// unrelated scales. A document missing from a list contributes 0 for it.
func FuseWeighted(semantic, keyword []Hit, semW, kwW float64) []Hit {
	acc := newAccumulator(len(semantic) + len(keyword))
	addNormalized(acc, Unique(semantic, 0), semW)
	addNormalized(acc, Unique(keyword, 0), kwW)
	return acc.hits()
}

func addNormalized(acc *accumulator, hits []Hit, weight float64) {
	maxScore := 0.0
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		norm := 0.0
		if maxScore > 0 && h.Score > 0 {
			norm = h.Score / maxScore
		}
		acc.add(h.DocID, weight*norm)
	}
}

// FuseRRF combines rankings with weighted Reciprocal Rank Fusion.
//
// Formula: score = semW/(k + semanticRank) + kwW/(k + keywordRank)
func FuseRRF(semantic, keyword []Hit, semW, kwW float64, k int) []Hit {
	if k <= 0 {
		k = DefaultRRFK
	}
	acc := newAccumulator(len(semantic) + len(keyword))
	for rank, h := range Unique(semantic, 0) {
		acc.add(h.DocID, semW/float64(k+rank+1))
	}
	for rank, h := range Unique(keyword, 0) {
		acc.add(h.DocID, kwW/float64(k+rank+1))
	}
	return acc.hits()
}
