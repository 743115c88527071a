package report

import (
	"fmt"
	"strings"

	"github.com/asmuvera/muvera-eval/internal/evaluation"
)

// markdownFormatter formats a report as Markdown
type markdownFormatter struct{}

func (f markdownFormatter) Format(r *Report) ([]byte, error) {
	var b strings.Builder

	b.WriteString("# Retrieval Evaluation Report\n\n")
	f.writeMetadata(&b, r.Metadata)
	f.writeSummaryTable(&b, r)
	f.writeLatencyTable(&b, r)
	f.writeInsights(&b, r.Insights)
	if len(r.Queries) > 0 {
		f.writeQueries(&b, r.Queries)
	}

	return []byte(b.String()), nil
}

func (f markdownFormatter) writeMetadata(b *strings.Builder, m Metadata) {
	fmt.Fprintf(b, "- Run: `%s`\n", m.RunID)
	fmt.Fprintf(b, "- Started: %s\n", m.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(b, "- Duration: %d ms\n", m.DurationMs)
	fmt.Fprintf(b, "- Queries: %d\n", m.Queries)
	fmt.Fprintf(b, "- Failed calls: %d\n", m.Failures)
	if m.ConfigDigest != "" {
		fmt.Fprintf(b, "- Config digest: `%s`\n", m.ConfigDigest)
	}
	b.WriteString("\n")
}

func (f markdownFormatter) writeSummaryTable(b *strings.Builder, r *Report) {
	metrics := evaluation.MetricNames(r.Metadata.Ks)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Strategy | " + strings.Join(metrics, " | ") + " | OK | Failed |\n")
	b.WriteString("|---" + strings.Repeat("|---:", len(metrics)+2) + "|\n")

	for _, s := range r.Summaries {
		cells := make([]string, 0, len(metrics))
		for _, m := range metrics {
			if s.NoData {
				cells = append(cells, StatusNoData)
				continue
			}
			st, ok := s.Metrics[m]
			if !ok {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, fmt.Sprintf("%.4f ± %.4f", st.Mean, st.StdDev))
		}
		fmt.Fprintf(b, "| %s | %s | %d | %d |\n", s.Strategy, strings.Join(cells, " | "), s.Succeeded, s.Failed)
	}
	b.WriteString("\n")
}

func (f markdownFormatter) writeLatencyTable(b *strings.Builder, r *Report) {
	b.WriteString("## Latency (ms)\n\n")
	b.WriteString("| Strategy | Mean | p50 | p95 | Min | Max |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|\n")
	for _, s := range r.Summaries {
		if s.Latency == nil {
			fmt.Fprintf(b, "| %s | - | - | - | - | - |\n", s.Strategy)
			continue
		}
		l := s.Latency
		fmt.Fprintf(b, "| %s | %.1f | %.1f | %.1f | %.1f | %.1f |\n", s.Strategy, l.Mean, l.P50, l.P95, l.Min, l.Max)
	}
	b.WriteString("\n")
}

func (f markdownFormatter) writeInsights(b *strings.Builder, in Insights) {
	b.WriteString("## Insights\n\n")
	if in.BestStrategy != "" {
		fmt.Fprintf(b, "- Best by %s: **%s** (%.4f)\n", in.PrimaryMetric, in.BestStrategy, in.BestScore)
	}
	if in.FastestStrategy != "" {
		fmt.Fprintf(b, "- Fastest: **%s** (%.1f ms mean)\n", in.FastestStrategy, in.FastestLatencyMs)
	}
	for _, c := range in.Comparisons {
		fmt.Fprintf(b, "- %s vs %s, %s: %+.4f", c.Candidate, c.Baseline, c.Metric, c.Delta)
		if c.RelativePct != 0 {
			fmt.Fprintf(b, " (%+.1f%%)", c.RelativePct)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func (f markdownFormatter) writeQueries(b *strings.Builder, queries []QueryBreakdown) {
	b.WriteString("## Per-query results\n\n")
	for _, q := range queries {
		fmt.Fprintf(b, "### %s\n\n", q.QueryID)
		if q.Query != "" {
			fmt.Fprintf(b, "> %s\n\n", strings.ReplaceAll(q.Query, "\n", " "))
		}
		b.WriteString("| Strategy | MRR | MAP | Latency (ms) | Hits | Top documents |\n")
		b.WriteString("|---|---:|---:|---:|---:|---|\n")
		for _, res := range q.Results {
			if res.Error != "" {
				fmt.Fprintf(b, "| %s | - | - | %.1f | - | %s: %s |\n",
					res.Strategy, res.LatencyMs, res.ErrorCode, escapeCell(res.Error))
				continue
			}
			fmt.Fprintf(b, "| %s | %.4f | %.4f | %.1f | %d | %s |\n",
				res.Strategy,
				res.Metrics[evaluation.MetricMRR],
				res.Metrics[evaluation.MetricMAP],
				res.LatencyMs,
				res.ResultCount,
				escapeCell(strings.Join(res.TopHits, ", ")),
			)
		}
		b.WriteString("\n")
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
