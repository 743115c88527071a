package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/asmuvera/muvera-eval/internal/evaluation"
)

var (
	titleColor   = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#60A5FA"}
	successColor = lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// terminalMetrics lists the columns printed for the cutoffs ks.
func terminalMetrics(ks []int) []string {
	var names []string
	for _, metric := range []string{evaluation.MetricNDCG, evaluation.MetricRecall} {
		for _, k := range ks {
			names = append(names, evaluation.MetricName(metric, k))
		}
	}
	return append(names, evaluation.MetricMRR, evaluation.MetricMAP)
}

// PrintSummary writes a table of strategy means and the report insights.
// Colors are only emitted when w is a terminal.
func PrintSummary(w io.Writer, r *Report) error {
	renderer := lipgloss.NewRenderer(w)
	title := renderer.NewStyle().Bold(true).Foreground(titleColor)
	best := renderer.NewStyle().Foreground(successColor)
	muted := renderer.NewStyle().Foreground(mutedColor)

	metrics := terminalMetrics(r.Metadata.Ks)
	headers := append([]string{"strategy"}, metrics...)
	headers = append(headers, "ok", "failed", "mean ms")

	rows := make([][]string, 0, len(r.Summaries))
	for _, s := range r.Summaries {
		row := []string{s.Strategy}
		for _, m := range metrics {
			if v, ok := s.Mean(m); ok {
				row = append(row, fmt.Sprintf("%.4f", v))
			} else if s.NoData {
				row = append(row, StatusNoData)
			} else {
				row = append(row, "-")
			}
		}
		latency := "-"
		if s.Latency != nil {
			latency = fmt.Sprintf("%.1f", s.Latency.Mean)
		}
		row = append(row, fmt.Sprintf("%d", s.Succeeded), fmt.Sprintf("%d", s.Failed), latency)
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)

	var b strings.Builder
	b.WriteString(title.Render("Evaluation results") + "\n")
	b.WriteString(muted.Render(fmt.Sprintf("run %s, %d queries, %d ms, %d failed calls",
		r.Metadata.RunID, r.Metadata.Queries, r.Metadata.DurationMs, r.Metadata.Failures)) + "\n")
	b.WriteString(t.String() + "\n")

	in := r.Insights
	if in.BestStrategy != "" {
		b.WriteString(best.Render(fmt.Sprintf("Best by %s: %s (%.4f)", in.PrimaryMetric, in.BestStrategy, in.BestScore)) + "\n")
	}
	if in.FastestStrategy != "" {
		fmt.Fprintf(&b, "Fastest: %s (%.1f ms)\n", in.FastestStrategy, in.FastestLatencyMs)
	}
	for _, c := range in.Comparisons {
		if c.Metric != in.PrimaryMetric {
			continue
		}
		fmt.Fprintf(&b, "%s vs %s on %s: %+.4f\n", c.Candidate, c.Baseline, c.Metric, c.Delta)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
