package retrieval

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/asmuvera/muvera-eval/internal/config"
	"github.com/asmuvera/muvera-eval/internal/embedding"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// Deps holds the engine clients adapters are built on. Only the clients
// the requested strategies need must be set.
type Deps struct {
	Vespa    VespaSearcher
	Qdrant   QdrantSearcher
	Keyword  KeywordSearcher
	Embedder embedding.Embedder
}

// Requirements reports which dependencies a strategy list needs.
type Requirements struct {
	Vespa    bool
	Qdrant   bool
	Keyword  bool
	Embedder bool
}

// Needs resolves the dependencies of names, following the fusion
// components.
func Needs(names []string, fusion config.FusionConfig) (Requirements, error) {
	var req Requirements
	for _, name := range expand(names, fusion) {
		info, ok := Lookup(name)
		if !ok {
			return req, unknownStrategy(name)
		}
		switch info.Engine {
		case EngineVespa:
			req.Vespa = true
		case EngineQdrant:
			req.Qdrant = true
		}
		if name == StrategyLocalKeyword {
			req.Keyword = true
		}
		if info.Embeddings {
			req.Embedder = true
		}
	}
	return req, nil
}

// expand appends the fusion components when fusion is requested.
func expand(names []string, fusion config.FusionConfig) []string {
	out := append([]string(nil), names...)
	for _, n := range names {
		if n == StrategyFusion {
			out = append(out, fusion.Semantic, fusion.Keyword)
			break
		}
	}
	return out
}

// Build creates one adapter per strategy name, in the given order. Every
// engine call goes through a limiter shared by all adapters, and every
// adapter drops duplicate documents.
func Build(cfg *config.Config, deps Deps) ([]Adapter, error) {
	if len(cfg.Eval.Strategies) == 0 {
		return nil, apperrors.ValidationError("no strategies configured")
	}

	b := &builder{
		cfg:     cfg,
		deps:    deps,
		limiter: NewLimiter(cfg.Eval.RateLimit, cfg.Eval.RateBurst),
		vespa:   DefaultVespaOptions(),
	}
	if cfg.Vespa.SingleSchema != "" {
		b.vespa.SingleSchema = cfg.Vespa.SingleSchema
	}
	if cfg.Vespa.MultiSchema != "" {
		b.vespa.MultiSchema = cfg.Vespa.MultiSchema
	}
	if cfg.Vespa.RankProfile != "" {
		b.vespa.RankProfile = cfg.Vespa.RankProfile
	}

	seen := make(map[string]bool, len(cfg.Eval.Strategies))
	adapters := make([]Adapter, 0, len(cfg.Eval.Strategies))
	for _, name := range cfg.Eval.Strategies {
		if seen[name] {
			return nil, apperrors.ValidationError(fmt.Sprintf("strategy %s listed twice", name))
		}
		seen[name] = true

		a, err := b.build(name)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, Dedup(a))
	}
	return adapters, nil
}

type builder struct {
	cfg     *config.Config
	deps    Deps
	limiter *rate.Limiter
	vespa   VespaOptions
}

func (b *builder) build(name string) (Adapter, error) {
	if name == StrategyFusion {
		return b.fusion()
	}
	a, err := b.base(name)
	if err != nil {
		return nil, err
	}
	return RateLimited(a, b.limiter), nil
}

// base creates an adapter that calls a single engine.
func (b *builder) base(name string) (Adapter, error) {
	info, ok := Lookup(name)
	if !ok {
		return nil, unknownStrategy(name)
	}
	if info.Embeddings && b.deps.Embedder == nil {
		return nil, missingDep(name, "a query embedder")
	}

	switch info.Engine {
	case EngineVespa:
		if b.deps.Vespa == nil {
			return nil, missingDep(name, "a vespa client")
		}
	case EngineQdrant:
		if b.deps.Qdrant == nil {
			return nil, missingDep(name, "a qdrant client")
		}
	}

	collection := b.cfg.Qdrant.Collection
	switch name {
	case StrategySingleVector:
		return NewVespaSingleVector(b.deps.Vespa, b.deps.Embedder, b.vespa), nil
	case StrategyMultiVector:
		return NewVespaMultiVector(b.deps.Vespa, b.deps.Embedder, b.vespa), nil
	case StrategyTextOnly:
		return NewVespaText(b.deps.Vespa, b.vespa), nil
	case StrategyHybrid:
		return NewVespaHybrid(b.deps.Vespa, b.deps.Embedder, b.vespa), nil
	case StrategyQdrantDense:
		return NewQdrantDense(b.deps.Qdrant, b.deps.Embedder, collection), nil
	case StrategyQdrantMulti:
		return NewQdrantMulti(b.deps.Qdrant, b.deps.Embedder, collection), nil
	case StrategyQdrantHybrid:
		return NewQdrantHybrid(b.deps.Qdrant, b.deps.Embedder, collection), nil
	case StrategyLocalKeyword:
		if b.deps.Keyword == nil {
			return nil, missingDep(name, "a keyword index")
		}
		return NewLocalKeyword(b.deps.Keyword), nil
	}
	return nil, unknownStrategy(name)
}

func (b *builder) fusion() (Adapter, error) {
	fc := b.cfg.Fusion
	if fc.Semantic == StrategyFusion || fc.Keyword == StrategyFusion {
		return nil, apperrors.ValidationError("fusion components cannot be fusion")
	}
	if fc.Semantic == fc.Keyword {
		return nil, apperrors.ValidationError("fusion components must differ")
	}

	sem, err := b.build(fc.Semantic)
	if err != nil {
		return nil, fmt.Errorf("fusion semantic component: %w", err)
	}
	kw, err := b.build(fc.Keyword)
	if err != nil {
		return nil, fmt.Errorf("fusion keyword component: %w", err)
	}

	return NewFusion(sem, kw, FusionConfig{
		Method:         fc.Method,
		SemanticWeight: fc.SemanticWeight,
		KeywordWeight:  fc.KeywordWeight,
		K:              fc.RRFK,
	}), nil
}

func unknownStrategy(name string) error {
	return apperrors.ValidationError(fmt.Sprintf("unknown strategy: %s", name)).
		WithDetail("strategy", name)
}

func missingDep(name, dep string) error {
	return apperrors.ValidationError(fmt.Sprintf("strategy %s requires %s", name, dep)).
		WithDetail("strategy", name)
}
