package embedding

import (
	"fmt"
	"strings"
	"time"

	"github.com/asmuvera/muvera-eval/internal/config"
	"github.com/asmuvera/muvera-eval/internal/pkg/errors"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
)

// New builds the configured embedder, wrapped in the configured cache.
// The returned close function releases the cache connection, if any.
// An unreachable Redis falls back to the in-memory cache.
func New(cfg config.EmbeddingConfig, metrics CacheMetrics, log *logger.Logger) (Embedder, func() error, error) {
	noop := func() error { return nil }

	var base Embedder
	switch strings.ToLower(cfg.Source) {
	case "hash", "":
		base = NewHash(cfg.Dim)
	case "precomputed":
		p, err := LoadPrecomputed(cfg.Path, cfg.Dim)
		if err != nil {
			return nil, nil, err
		}
		// Precomputed vectors are already in memory.
		return p, noop, nil
	default:
		return nil, nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown embedding source: %s", cfg.Source))
	}

	switch strings.ToLower(cfg.CacheType) {
	case "none":
		return base, noop, nil

	case "redis":
		rc, err := NewRedisCache(cfg.RedisURL, time.Duration(cfg.CacheTTL)*time.Second)
		if err == nil {
			if metrics != nil {
				rc.SetMetrics(metrics)
			}
			return NewCached(base, rc), rc.Close, nil
		}
		log.Warn("Redis embedding cache unavailable, using memory cache", "error", err)
		fallthrough

	case "memory", "":
		mc := NewMemoryCache(cfg.CacheSize)
		if metrics != nil {
			mc.SetMetrics(metrics)
		}
		return NewCached(base, mc), noop, nil

	default:
		return nil, nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown cache type: %s", cfg.CacheType))
	}
}
