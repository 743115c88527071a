package evaluation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/asmuvera/muvera-eval/internal/bus"
	"github.com/asmuvera/muvera-eval/internal/dataset"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// HandlerConfig holds the collaborators of a Handler.
type HandlerConfig struct {
	// Options are the defaults for every request.
	Options Options

	// Adapters are the strategies a request may select from.
	Adapters []retrieval.Adapter

	// Judgments seeds the judgment store. May be nil.
	Judgments *dataset.Judgments

	// Runs keeps completed runs. Nil creates a default store.
	Runs *RunStore

	Log       *logger.Logger
	Publisher bus.Publisher
	Recorder  MetricsRecorder
}

// Handler provides HTTP handlers for evaluation.
type Handler struct {
	cfg      HandlerConfig
	adapters map[string]retrieval.Adapter
	runs     *RunStore

	mu        sync.RWMutex
	judgments *dataset.Judgments
}

// NewHandler creates a new evaluation handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Log == nil {
		cfg.Log = logger.Default()
	}
	if cfg.Runs == nil {
		cfg.Runs = NewRunStore(DefaultRunHistory)
	}
	if len(cfg.Options.Ks) == 0 {
		cfg.Options = DefaultOptions()
	}
	judgments := cfg.Judgments
	if judgments == nil {
		judgments = dataset.NewJudgments()
	}

	adapters := make(map[string]retrieval.Adapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapters[a.Name()] = a
	}

	return &Handler{
		cfg:       cfg,
		adapters:  adapters,
		runs:      cfg.Runs,
		judgments: judgments,
	}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluation/judgments", h.handleLoadJudgments)
	mux.HandleFunc("GET /v1/evaluation/strategies", h.handleStrategies)
	mux.HandleFunc("GET /v1/evaluation/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/evaluation/runs/{id}", h.handleGetRun)
}

// QueryInput is one query of an evaluate request. Query is accepted as an
// alias of Text.
type QueryInput struct {
	ID    string `json:"id"`
	Text  string `json:"text,omitempty"`
	Query string `json:"query,omitempty"`
}

// JudgmentInput is one graded (query, document) pair.
type JudgmentInput struct {
	QueryID   string `json:"query_id"`
	DocID     string `json:"doc_id"`
	Relevance *int   `json:"relevance"`
}

// Grade returns a relevance grade for a JudgmentInput.
func Grade(g int) *int {
	return &g
}

// EvaluateRequest is the JSON request body for an evaluation.
type EvaluateRequest struct {
	Queries    []QueryInput    `json:"queries"`
	Strategies []string        `json:"strategies,omitempty"`
	Ks         []int           `json:"ks,omitempty"`
	MaxResults int             `json:"max_results,omitempty"`
	Judgments  []JudgmentInput `json:"judgments,omitempty"`
}

// StrategyStatus describes a strategy and whether this server can run it.
type StrategyStatus struct {
	retrieval.StrategyInfo
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	queries, err := requestQueries(req.Queries)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	adapters, err := h.selectAdapters(req.Strategies)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	judgments := h.currentJudgments()
	if len(req.Judgments) > 0 {
		judgments, err = addJudgments(cloneJudgments(judgments), req.Judgments)
		if err != nil {
			apperrors.WriteError(w, err)
			return
		}
	}

	opts := h.cfg.Options
	if len(req.Ks) > 0 {
		opts.Ks = req.Ks
	}
	if req.MaxResults > 0 {
		opts.MaxResults = req.MaxResults
	}

	evaluator, err := NewEvaluator(opts, adapters, judgments, h.cfg.Log, h.cfg.Publisher, h.cfg.Recorder)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	run, err := evaluator.Run(r.Context(), queries)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	h.runs.Add(run)

	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleLoadJudgments(w http.ResponseWriter, r *http.Request) {
	var judgments []JudgmentInput
	if err := decodeBody(w, r, &judgments); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Readers keep the store they already hold.
	updated, err := addJudgments(cloneJudgments(h.judgments), judgments)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	h.judgments = updated

	h.cfg.Log.Info("Judgments loaded", "added", len(judgments), "total", updated.Len())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStrategies(w http.ResponseWriter, r *http.Request) {
	infos := retrieval.Strategies()
	out := make([]StrategyStatus, 0, len(infos))
	for _, info := range infos {
		_, enabled := h.adapters[info.Name]
		out = append(out, StrategyStatus{StrategyInfo: info, Enabled: enabled})
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": out})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.runs.List()})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, ok := h.runs.Get(id)
	if !ok {
		apperrors.WriteError(w, apperrors.NotFoundError(fmt.Sprintf("run %s", id)))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ReplaceJudgments swaps the judgment store used by later evaluations.
// Evaluations already running keep the store they started with.
func (h *Handler) ReplaceJudgments(j *dataset.Judgments) {
	if j == nil {
		j = dataset.NewJudgments()
	}
	h.mu.Lock()
	h.judgments = j
	h.mu.Unlock()
}

func (h *Handler) currentJudgments() *dataset.Judgments {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.judgments
}

// selectAdapters resolves requested strategy names. An empty request
// selects every configured strategy in configuration order.
func (h *Handler) selectAdapters(names []string) ([]retrieval.Adapter, error) {
	if len(names) == 0 {
		if len(h.cfg.Adapters) == 0 {
			return nil, apperrors.ServiceUnavailableError("evaluation strategies")
		}
		return h.cfg.Adapters, nil
	}

	out := make([]retrieval.Adapter, 0, len(names))
	for _, name := range names {
		a, ok := h.adapters[name]
		if !ok {
			if _, known := retrieval.Lookup(name); known {
				return nil, apperrors.ValidationError(fmt.Sprintf("strategy %s is not configured on this server", name))
			}
			return nil, apperrors.NotFoundError(fmt.Sprintf("strategy %s", name))
		}
		out = append(out, a)
	}
	return out, nil
}

func requestQueries(in []QueryInput) ([]dataset.Query, error) {
	if len(in) == 0 {
		return nil, apperrors.InvalidRequestError("at least one query is required")
	}
	queries := make([]dataset.Query, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, q := range in {
		text := q.Text
		if text == "" {
			text = q.Query
		}
		if q.ID == "" || text == "" {
			return nil, apperrors.InvalidRequestError(fmt.Sprintf("query %d needs an id and text", i))
		}
		if seen[q.ID] {
			return nil, apperrors.InvalidRequestError(fmt.Sprintf("duplicate query id %s", q.ID))
		}
		seen[q.ID] = true
		queries = append(queries, dataset.Query{ID: q.ID, Text: text})
	}
	return queries, nil
}

func cloneJudgments(src *dataset.Judgments) *dataset.Judgments {
	dst := dataset.NewJudgments()
	for _, qid := range src.QueryIDs() {
		for _, j := range src.ForQuery(qid).All() {
			// Entries of src are already valid.
			_ = dst.Add(qid, j.DocID, j.Grade)
		}
	}
	return dst
}

func addJudgments(dst *dataset.Judgments, in []JudgmentInput) (*dataset.Judgments, error) {
	for i, j := range in {
		if j.Relevance == nil {
			return nil, apperrors.InvalidRequestError(fmt.Sprintf("judgment %d: relevance is required", i))
		}
		if err := dst.Add(j.QueryID, j.DocID, *j.Relevance); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, fmt.Sprintf("judgment %d", i), err)
		}
	}
	return dst, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.InvalidRequestError("invalid request body: " + err.Error())
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
