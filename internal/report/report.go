// Package report turns an evaluation run into a persisted report and a
// terminal summary.
package report

import (
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asmuvera/muvera-eval/internal/evaluation"
	"github.com/asmuvera/muvera-eval/internal/pkg/hash"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
)

// StatusNoData marks a strategy without a single successful query.
const StatusNoData = "NO_DATA"

// StatusOK marks a strategy with at least one successful query.
const StatusOK = "OK"

// Meta carries run context that is not part of the run itself.
type Meta struct {
	QueriesPath   string
	JudgmentsPath string
	Version       string

	// Config is digested into the report so runs with identical settings
	// can be matched. May be nil.
	Config any

	// PerQuery includes the per-query breakdown.
	PerQuery bool
}

// Metadata describes the run a report was built from.
type Metadata struct {
	RunID         string    `json:"run_id" yaml:"run_id"`
	GeneratedAt   time.Time `json:"generated_at" yaml:"generated_at"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	DurationMs    int64     `json:"duration_ms" yaml:"duration_ms"`
	Queries       int       `json:"queries" yaml:"queries"`
	Strategies    []string  `json:"strategies" yaml:"strategies"`
	Ks            []int     `json:"ks" yaml:"ks"`
	Failures      int       `json:"failures" yaml:"failures"`
	QueriesPath   string    `json:"queries_path,omitempty" yaml:"queries_path,omitempty"`
	JudgmentsPath string    `json:"judgments_path,omitempty" yaml:"judgments_path,omitempty"`
	ConfigDigest  string    `json:"config_digest,omitempty" yaml:"config_digest,omitempty"`
	Version       string    `json:"version,omitempty" yaml:"version,omitempty"`
}

// StrategySummary is a summary record with its report status.
type StrategySummary struct {
	evaluation.SummaryRecord `yaml:",inline"`
	Status                   string `json:"status" yaml:"status"`
}

// QueryResult is one strategy's outcome on one query.
type QueryResult struct {
	Strategy    string             `json:"strategy" yaml:"strategy"`
	Metrics     evaluation.Metrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	LatencyMs   float64            `json:"latency_ms" yaml:"latency_ms"`
	ResultCount int                `json:"result_count" yaml:"result_count"`
	TopHits     []string           `json:"top_hits,omitempty" yaml:"top_hits,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode   string             `json:"error_code,omitempty" yaml:"error_code,omitempty"`
}

// QueryBreakdown lists every strategy's outcome for a query.
type QueryBreakdown struct {
	QueryID string        `json:"query_id" yaml:"query_id"`
	Query   string        `json:"query" yaml:"query"`
	Results []QueryResult `json:"results" yaml:"results"`
}

// Comparison is the difference of a metric between two strategies.
type Comparison struct {
	Baseline    string  `json:"baseline" yaml:"baseline"`
	Candidate   string  `json:"candidate" yaml:"candidate"`
	Metric      string  `json:"metric" yaml:"metric"`
	Delta       float64 `json:"delta" yaml:"delta"`
	RelativePct float64 `json:"relative_pct,omitempty" yaml:"relative_pct,omitempty"`
}

// Insights highlights the strategies worth looking at first.
type Insights struct {
	PrimaryMetric    string       `json:"primary_metric" yaml:"primary_metric"`
	BestStrategy     string       `json:"best_strategy,omitempty" yaml:"best_strategy,omitempty"`
	BestScore        float64      `json:"best_score,omitempty" yaml:"best_score,omitempty"`
	FastestStrategy  string       `json:"fastest_strategy,omitempty" yaml:"fastest_strategy,omitempty"`
	FastestLatencyMs float64      `json:"fastest_latency_ms,omitempty" yaml:"fastest_latency_ms,omitempty"`
	Comparisons      []Comparison `json:"comparisons,omitempty" yaml:"comparisons,omitempty"`
}

// Report is the persisted result of an evaluation run.
type Report struct {
	Metadata  Metadata          `json:"metadata" yaml:"metadata"`
	Summaries []StrategySummary `json:"summaries" yaml:"summaries"`
	Insights  Insights          `json:"insights" yaml:"insights"`
	Queries   []QueryBreakdown  `json:"queries,omitempty" yaml:"queries,omitempty"`
}

// comparedPairs are the single- versus multi-vector strategy pairs.
var comparedPairs = [][2]string{
	{retrieval.StrategySingleVector, retrieval.StrategyMultiVector},
	{retrieval.StrategyQdrantDense, retrieval.StrategyQdrantMulti},
}

// Build assembles a report from a completed run.
func Build(run *evaluation.Run, meta Meta) (*Report, error) {
	if run == nil {
		return nil, fmt.Errorf("no run to report")
	}

	r := &Report{
		Metadata: Metadata{
			RunID:         run.ID,
			GeneratedAt:   time.Now().UTC(),
			StartedAt:     run.StartedAt,
			DurationMs:    run.DurationMs,
			Queries:       run.Queries,
			Strategies:    run.Strategies,
			Ks:            run.Ks,
			Failures:      run.Failures(),
			QueriesPath:   meta.QueriesPath,
			JudgmentsPath: meta.JudgmentsPath,
			Version:       meta.Version,
		},
	}

	if meta.Config != nil {
		data, err := yaml.Marshal(meta.Config)
		if err != nil {
			return nil, fmt.Errorf("digesting config: %w", err)
		}
		r.Metadata.ConfigDigest = hash.SHA256Short(data, 16)
	}

	for _, s := range run.Summaries {
		status := StatusOK
		if s.NoData {
			status = StatusNoData
		}
		r.Summaries = append(r.Summaries, StrategySummary{SummaryRecord: s, Status: status})
	}

	r.Insights = buildInsights(run.Summaries, run.Ks)

	if meta.PerQuery {
		r.Queries = breakdown(run.Records)
	}
	return r, nil
}

// PrimaryMetric is ndcg@10 when 10 is a cutoff, otherwise ndcg at the
// first cutoff.
func PrimaryMetric(ks []int) string {
	if len(ks) == 0 {
		return evaluation.MetricMRR
	}
	if slices.Contains(ks, 10) {
		return evaluation.MetricName(evaluation.MetricNDCG, 10)
	}
	return evaluation.MetricName(evaluation.MetricNDCG, ks[0])
}

func buildInsights(summaries []evaluation.SummaryRecord, ks []int) Insights {
	in := Insights{PrimaryMetric: PrimaryMetric(ks)}

	byName := make(map[string]evaluation.SummaryRecord, len(summaries))
	for _, s := range summaries {
		byName[s.Strategy] = s
		if s.NoData {
			continue
		}
		if score, ok := s.Mean(in.PrimaryMetric); ok && (in.BestStrategy == "" || score > in.BestScore) {
			in.BestStrategy = s.Strategy
			in.BestScore = score
		}
		if s.Latency != nil && (in.FastestStrategy == "" || s.Latency.Mean < in.FastestLatencyMs) {
			in.FastestStrategy = s.Strategy
			in.FastestLatencyMs = s.Latency.Mean
		}
	}

	for _, pair := range comparedPairs {
		base, okBase := byName[pair[0]]
		cand, okCand := byName[pair[1]]
		if !okBase || !okCand || base.NoData || cand.NoData {
			continue
		}
		for _, metric := range evaluation.MetricNames(ks) {
			b, ok1 := base.Mean(metric)
			c, ok2 := cand.Mean(metric)
			if !ok1 || !ok2 {
				continue
			}
			cmp := Comparison{
				Baseline:  pair[0],
				Candidate: pair[1],
				Metric:    metric,
				Delta:     c - b,
			}
			if b > 0 {
				cmp.RelativePct = (c - b) / b * 100
			}
			in.Comparisons = append(in.Comparisons, cmp)
		}
	}
	return in
}

// breakdown groups records by query, keeping record order.
func breakdown(records []evaluation.MetricRecord) []QueryBreakdown {
	var out []QueryBreakdown
	index := make(map[string]int)
	for _, rec := range records {
		i, ok := index[rec.QueryID]
		if !ok {
			i = len(out)
			index[rec.QueryID] = i
			out = append(out, QueryBreakdown{QueryID: rec.QueryID, Query: rec.QueryText})
		}
		out[i].Results = append(out[i].Results, QueryResult{
			Strategy:    rec.Strategy,
			Metrics:     rec.Metrics,
			LatencyMs:   rec.LatencyMs,
			ResultCount: rec.ResultCount,
			TopHits:     retrieval.DocIDs(rec.TopHits),
			Error:       rec.Error,
			ErrorCode:   rec.ErrorCode,
		})
	}
	return out
}
