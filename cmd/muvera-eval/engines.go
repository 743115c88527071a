package main

import (
	"fmt"
	"strings"

	"github.com/asmuvera/muvera-eval/internal/config"
	"github.com/asmuvera/muvera-eval/internal/embedding"
	"github.com/asmuvera/muvera-eval/internal/keyword"
	"github.com/asmuvera/muvera-eval/internal/metrics"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/qdrant"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
	"github.com/asmuvera/muvera-eval/internal/vespa"
)

// engines holds the clients a strategy list needs. Unused clients stay nil.
type engines struct {
	vespa    *vespa.Client
	qdrant   *qdrant.Client
	keyword  *keyword.Index
	embedder embedding.Embedder
	closers  []func() error
}

// openEngines connects to every engine req names.
func openEngines(cfg *config.Config, req retrieval.Requirements, m *metrics.Metrics, log *logger.Logger) (*engines, error) {
	e := &engines{}

	if req.Vespa {
		vc, err := newVespa(cfg)
		if err != nil {
			return nil, err
		}
		e.vespa = vc
		log.Info("Using Vespa", "url", vc.URL())
	}

	if req.Qdrant {
		qc, err := newQdrant(cfg)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.qdrant = qc
		e.closers = append(e.closers, qc.Close)
		log.Info("Using Qdrant", "url", cfg.Qdrant.URL, "collection", cfg.Qdrant.Collection)
	}

	if req.Keyword {
		idx, err := keyword.LoadIndex(cfg.Keyword.PassagesPath)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to build keyword index: %w", err)
		}
		e.keyword = idx
		e.closers = append(e.closers, idx.Close)
		n, _ := idx.Count()
		log.Info("Built keyword index", "passages", n)
	}

	if req.Embedder {
		emb, closeFn, err := embedding.New(cfg.Embedding, m, log)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.embedder = emb
		e.closers = append(e.closers, closeFn)
		log.Info("Using query embeddings", "source", cfg.Embedding.Source, "dim", emb.Dim(), "cache", cfg.Embedding.CacheType)
	}

	return e, nil
}

// deps converts the open clients to adapter dependencies. Nil clients must
// stay nil interfaces.
func (e *engines) deps() retrieval.Deps {
	var d retrieval.Deps
	if e.vespa != nil {
		d.Vespa = e.vespa
	}
	if e.qdrant != nil {
		d.Qdrant = e.qdrant
	}
	if e.keyword != nil {
		d.Keyword = e.keyword
	}
	d.Embedder = e.embedder
	return d
}

// collector builds a health collector over the open engines.
func (e *engines) collector(m *metrics.Metrics, cfg *config.Config, log *logger.Logger) *metrics.Collector {
	var vs metrics.VespaStatus
	if e.vespa != nil {
		vs = e.vespa
	}
	var qs metrics.QdrantStatus
	if e.qdrant != nil {
		qs = e.qdrant
	}
	return metrics.NewCollector(m, vs, qs, cfg.Qdrant.Collection, log)
}

// Close releases clients in reverse order of creation.
func (e *engines) Close() error {
	var errs []string
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err.Error())
		}
	}
	e.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("closing engines: %s", strings.Join(errs, "; "))
	}
	return nil
}

func newVespa(cfg *config.Config) (*vespa.Client, error) {
	return vespa.New(vespa.Config{
		URL:     cfg.Vespa.URL,
		Timeout: cfg.Vespa.Timeout,
	})
}

func newQdrant(cfg *config.Config) (*qdrant.Client, error) {
	qcfg := qdrant.DefaultClientConfig()
	if cfg.Qdrant.URL != "" {
		host, port, err := qdrant.ParseURL(cfg.Qdrant.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
		}
		qcfg.Host = host
		qcfg.Port = port
		qcfg.UseTLS = strings.HasPrefix(cfg.Qdrant.URL, "https://")
	}
	qcfg.APIKey = cfg.Qdrant.APIKey
	qcfg.Timeout = cfg.Qdrant.Timeout
	if cfg.Qdrant.DenseVector != "" {
		qcfg.DenseVector = cfg.Qdrant.DenseVector
	}
	if cfg.Qdrant.MultiVector != "" {
		qcfg.MultiVector = cfg.Qdrant.MultiVector
	}
	return qdrant.NewClient(qcfg)
}
