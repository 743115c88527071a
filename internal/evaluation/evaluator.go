// Package evaluation scores retrieval strategies against graded relevance
// judgments and aggregates the results per strategy.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/asmuvera/muvera-eval/internal/bus"
	"github.com/asmuvera/muvera-eval/internal/config"
	"github.com/asmuvera/muvera-eval/internal/dataset"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
)

// Options configures an evaluation run.
type Options struct {
	// Ks are the cutoffs for NDCG, Recall and Precision.
	Ks []int

	// MaxResults is the number of hits requested from every strategy.
	MaxResults int

	// CallTimeout bounds a single strategy call.
	CallTimeout time.Duration

	// Workers is the number of queries evaluated concurrently.
	Workers int

	// Threshold is the minimum grade counted as relevant.
	Threshold int

	// TopHits is the number of hits kept on each record for reports.
	TopHits int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Ks:          []int{1, 5, 10},
		MaxResults:  10,
		CallTimeout: 10 * time.Second,
		Workers:     1,
		Threshold:   DefaultRelevanceThreshold,
		TopHits:     5,
	}
}

// OptionsFromConfig maps the run and report configuration to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Ks:          append([]int(nil), cfg.Eval.Ks...),
		MaxResults:  cfg.Eval.MaxResults,
		CallTimeout: cfg.Eval.CallTimeout,
		Workers:     cfg.Eval.Workers,
		Threshold:   cfg.Eval.RelevanceThreshold,
		TopHits:     cfg.Report.TopHits,
	}
}

// Validate checks that the options describe a runnable evaluation.
func (o Options) Validate() error {
	if len(o.Ks) == 0 {
		return apperrors.ValidationError("at least one cutoff k is required")
	}
	maxK := 0
	for _, k := range o.Ks {
		if k < 1 {
			return apperrors.ValidationError(fmt.Sprintf("cutoff k must be positive, got %d", k))
		}
		maxK = max(maxK, k)
	}
	if o.MaxResults < maxK {
		return apperrors.ValidationError(fmt.Sprintf("max results (%d) must be at least the largest k (%d)", o.MaxResults, maxK))
	}
	if o.CallTimeout <= 0 {
		return apperrors.ValidationError("call timeout must be positive")
	}
	return nil
}

// MetricsRecorder receives per-call and per-run measurements.
type MetricsRecorder interface {
	RecordAdapterCall(strategy string, latency time.Duration, results int, err error)
	RunStarted()
	RunFinished(duration time.Duration, err error)
}

// Evaluator runs every query through every strategy and scores the results.
type Evaluator struct {
	opts      Options
	adapters  []retrieval.Adapter
	judgments *dataset.Judgments
	log       *logger.Logger
	publisher bus.Publisher
	recorder  MetricsRecorder
}

// NewEvaluator creates an evaluator.
// publisher and recorder are optional; nil disables them.
func NewEvaluator(opts Options, adapters []retrieval.Adapter, judgments *dataset.Judgments, log *logger.Logger, publisher bus.Publisher, recorder MetricsRecorder) (*Evaluator, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Threshold < 1 {
		opts.Threshold = DefaultRelevanceThreshold
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		return nil, apperrors.ValidationError("at least one strategy is required")
	}
	seen := make(map[string]bool, len(adapters))
	for _, a := range adapters {
		if seen[a.Name()] {
			return nil, apperrors.ValidationError(fmt.Sprintf("strategy %s listed twice", a.Name()))
		}
		seen[a.Name()] = true
	}
	if judgments == nil {
		judgments = dataset.NewJudgments()
	}
	if log == nil {
		log = logger.Default()
	}

	return &Evaluator{
		opts:      opts,
		adapters:  adapters,
		judgments: judgments,
		log:       log,
		publisher: publisher,
		recorder:  recorder,
	}, nil
}

// Options returns the evaluator's effective options.
func (e *Evaluator) Options() Options {
	return e.opts
}

// Strategies returns the strategy names in evaluation order.
func (e *Evaluator) Strategies() []string {
	names := make([]string, len(e.adapters))
	for i, a := range e.adapters {
		names[i] = a.Name()
	}
	return names
}

// Run evaluates queries and summarizes the records per strategy.
//
// Failed or timed out strategy calls are recorded and the run continues.
// Run returns an error only when ctx ends before every query was
// evaluated or when a metric falls outside [0, 1].
func (e *Evaluator) Run(ctx context.Context, queries []dataset.Query) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Strategies: e.Strategies(),
		Ks:         append([]int(nil), e.opts.Ks...),
		Queries:    len(queries),
	}
	log := e.log.WithRun(run.ID)

	if e.recorder != nil {
		e.recorder.RunStarted()
	}
	log.Info("Evaluation started",
		"queries", len(queries),
		"strategies", run.Strategies,
		"workers", e.opts.Workers,
	)
	e.publish(ctx, bus.TopicRunStarted, run.ID, bus.RunPayload{
		RunID:      run.ID,
		Queries:    len(queries),
		Strategies: run.Strategies,
	})

	records, err := e.evaluateAll(ctx, run.ID, queries)

	run.Duration = time.Since(run.StartedAt)
	run.DurationMs = run.Duration.Milliseconds()
	if e.recorder != nil {
		e.recorder.RunFinished(run.Duration, err)
	}

	completed := bus.RunPayload{
		RunID:      run.ID,
		Queries:    len(queries),
		Strategies: run.Strategies,
		Records:    len(records),
		DurationMs: run.DurationMs,
	}
	if err != nil {
		completed.Error = err.Error()
		e.publish(ctx, bus.TopicRunCompleted, run.ID, completed)
		log.Error("Evaluation failed", "error", err.Error())
		return nil, err
	}

	run.Records = records
	run.Summaries = Summarize(records, run.Strategies)
	completed.Failures = run.Failures()
	e.publish(ctx, bus.TopicRunCompleted, run.ID, completed)

	log.Info("Evaluation completed",
		"records", len(records),
		"failures", completed.Failures,
		"duration_ms", run.DurationMs,
	)
	return run, nil
}

func (e *Evaluator) evaluateAll(ctx context.Context, runID string, queries []dataset.Query) ([]MetricRecord, error) {
	var (
		mu        sync.Mutex
		records   = make([]MetricRecord, 0, len(queries)*len(e.adapters))
		completed atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			recs, err := e.evaluateQuery(gctx, i, q)
			if err != nil {
				return err
			}

			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()

			failures := 0
			for _, r := range recs {
				if !r.OK() {
					failures++
				}
			}
			e.publish(gctx, bus.TopicQueryCompleted, runID, bus.QueryCompletedPayload{
				RunID:      runID,
				QueryID:    q.ID,
				QueryIndex: i,
				Strategies: len(recs),
				Failures:   failures,
				Completed:  int(completed.Add(1)),
				Total:      len(queries),
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, runError(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, runError(err)
	}

	order := make(map[string]int, len(e.adapters))
	for i, a := range e.adapters {
		order[a.Name()] = i
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].QueryIndex != records[j].QueryIndex {
			return records[i].QueryIndex < records[j].QueryIndex
		}
		return order[records[i].Strategy] < order[records[j].Strategy]
	})
	return records, nil
}

func runError(err error) error {
	if apperrors.CodeOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeTimeout, "evaluation run exceeded its deadline", err)
	}
	return apperrors.InternalError("evaluation run interrupted", err)
}

// evaluateQuery runs one query through every strategy in order.
func (e *Evaluator) evaluateQuery(ctx context.Context, index int, q dataset.Query) ([]MetricRecord, error) {
	recs := make([]MetricRecord, 0, len(e.adapters))
	for _, a := range e.adapters {
		rec, err := e.EvaluateQuery(ctx, a, q)
		if err != nil {
			return nil, err
		}
		rec.QueryIndex = index
		recs = append(recs, rec)
	}
	return recs, nil
}

// EvaluateQuery runs q through a single strategy and scores the result.
// A failed call yields a record with Err set and a nil error. The error
// is non-nil only for a metric defect.
func (e *Evaluator) EvaluateQuery(ctx context.Context, a retrieval.Adapter, q dataset.Query) (MetricRecord, error) {
	return e.evaluate(ctx, a, q, e.judgments.ForQuery(q.ID))
}

func (e *Evaluator) evaluate(ctx context.Context, a retrieval.Adapter, q dataset.Query, qrels dataset.QueryJudgments) (MetricRecord, error) {
	rec := MetricRecord{
		QueryID:   q.ID,
		QueryText: q.Text,
		Strategy:  a.Name(),
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	start := time.Now()
	hits, err := a.Search(callCtx, q, e.opts.MaxResults)
	latency := time.Since(start)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	rec.LatencyMs = float64(latency.Microseconds()) / 1000
	if err == nil && timedOut {
		err = context.DeadlineExceeded
	}
	if err != nil {
		err = e.callError(a.Name(), err, timedOut)
	}
	if e.recorder != nil {
		e.recorder.RecordAdapterCall(a.Name(), latency, len(hits), err)
	}

	if err != nil {
		rec.Err = err
		rec.Error = err.Error()
		rec.ErrorCode = apperrors.CodeOf(err)
		e.log.WithStrategy(a.Name()).WithQuery(q.ID).Warn("Strategy call failed",
			"error", err.Error(),
			"latency_ms", rec.LatencyMs,
		)
		return rec, nil
	}

	hits = retrieval.Unique(hits, e.opts.MaxResults)
	metrics, err := Compute(retrieval.DocIDs(hits), qrels, e.opts.Ks, e.opts.Threshold)
	if err != nil {
		return rec, fmt.Errorf("query %s strategy %s: %w", q.ID, a.Name(), err)
	}

	rec.Metrics = metrics
	rec.ResultCount = len(hits)
	if e.opts.TopHits > 0 {
		rec.TopHits = append([]retrieval.Hit(nil), hits[:min(e.opts.TopHits, len(hits))]...)
	}
	return rec, nil
}

// callError classifies a failed strategy call.
func (e *Evaluator) callError(strategy string, err error, timedOut bool) error {
	if apperrors.IsTimeout(err) {
		return err
	}
	if timedOut {
		return apperrors.Wrap(apperrors.CodeTimeout,
			fmt.Sprintf("strategy %s exceeded %s", strategy, e.opts.CallTimeout), err).
			WithDetail("strategy", strategy)
	}
	return apperrors.AdapterError(strategy, err)
}

func (e *Evaluator) publish(ctx context.Context, topic, runID string, payload any) {
	if e.publisher == nil {
		return
	}
	// Progress events are still delivered when the run was cancelled.
	if err := e.publisher.Publish(context.WithoutCancel(ctx), topic, bus.NewEvent(topic, runID, payload)); err != nil {
		e.log.Debug("Failed to publish evaluation event", "topic", topic, "error", err.Error())
	}
}
