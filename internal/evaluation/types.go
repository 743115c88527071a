package evaluation

import (
	"time"

	"github.com/asmuvera/muvera-eval/internal/retrieval"
)

// MetricRecord is the outcome of one strategy on one query.
// A record with Err set carries no metrics and is excluded from summaries.
type MetricRecord struct {
	QueryID     string          `json:"query_id"`
	QueryText   string          `json:"query"`
	QueryIndex  int             `json:"-"`
	Strategy    string          `json:"strategy"`
	Metrics     Metrics         `json:"metrics,omitempty"`
	LatencyMs   float64         `json:"latency_ms"`
	ResultCount int             `json:"result_count"`
	TopHits     []retrieval.Hit `json:"top_hits,omitempty"`
	Err         error           `json:"-"`
	Error       string          `json:"error,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`
}

// OK reports whether the strategy call succeeded.
func (r MetricRecord) OK() bool {
	return r.Err == nil && r.Error == ""
}

// Stat aggregates one metric over the successful records of a strategy.
// StdDev is the population standard deviation.
type Stat struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"std" yaml:"std"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Count  int     `json:"count" yaml:"count"`
}

// LatencyStats summarizes call latency in milliseconds.
type LatencyStats struct {
	Mean float64 `json:"mean_ms" yaml:"mean_ms"`
	P50  float64 `json:"p50_ms" yaml:"p50_ms"`
	P95  float64 `json:"p95_ms" yaml:"p95_ms"`
	Min  float64 `json:"min_ms" yaml:"min_ms"`
	Max  float64 `json:"max_ms" yaml:"max_ms"`
}

// SummaryRecord aggregates every record of one strategy. When no query
// succeeded NoData is set, Metrics is empty and Latency is nil.
type SummaryRecord struct {
	Strategy  string          `json:"strategy" yaml:"strategy"`
	Metrics   map[string]Stat `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Latency   *LatencyStats   `json:"latency,omitempty" yaml:"latency,omitempty"`
	Succeeded int             `json:"succeeded" yaml:"succeeded"`
	Failed    int             `json:"failed" yaml:"failed"`
	NoData    bool            `json:"no_data,omitempty" yaml:"no_data,omitempty"`
}

// Mean returns the mean of metric, and false when it is unavailable.
func (s SummaryRecord) Mean(metric string) (float64, bool) {
	if s.NoData {
		return 0, false
	}
	st, ok := s.Metrics[metric]
	return st.Mean, ok
}

// Run is a completed evaluation.
type Run struct {
	ID         string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"-"`
	DurationMs int64           `json:"duration_ms"`
	Strategies []string        `json:"strategies"`
	Ks         []int           `json:"ks"`
	Queries    int             `json:"queries"`
	Records    []MetricRecord  `json:"records,omitempty"`
	Summaries  []SummaryRecord `json:"summaries"`
}

// Failures counts the failed (query, strategy) calls.
func (r *Run) Failures() int {
	n := 0
	for _, rec := range r.Records {
		if !rec.OK() {
			n++
		}
	}
	return n
}

// Summary returns the summary of strategy.
func (r *Run) Summary(strategy string) (SummaryRecord, bool) {
	for _, s := range r.Summaries {
		if s.Strategy == strategy {
			return s, true
		}
	}
	return SummaryRecord{}, false
}

// RunInfo is the short listing form of a run.
type RunInfo struct {
	ID         string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Strategies []string  `json:"strategies"`
	Queries    int       `json:"queries"`
	Failures   int       `json:"failures"`
}

// Info returns the listing form of r.
func (r *Run) Info() RunInfo {
	return RunInfo{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		DurationMs: r.DurationMs,
		Strategies: r.Strategies,
		Queries:    r.Queries,
		Failures:   r.Failures(),
	}
}
