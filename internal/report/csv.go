package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/asmuvera/muvera-eval/internal/evaluation"
)

// csvFormatter writes one row per strategy with the mean of every metric.
type csvFormatter struct{}

func (csvFormatter) Format(r *Report) ([]byte, error) {
	var b bytes.Buffer
	writer := csv.NewWriter(&b)

	metrics := evaluation.MetricNames(r.Metadata.Ks)
	headers := append([]string{"strategy", "status", "succeeded", "failed"}, metrics...)
	headers = append(headers, "latency_mean_ms", "latency_p50_ms", "latency_p95_ms")

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range r.Summaries {
		row := []string{
			s.Strategy,
			s.Status,
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
		}
		for _, m := range metrics {
			row = append(row, csvMean(s, m))
		}
		if s.Latency == nil {
			row = append(row, "", "", "")
		} else {
			row = append(row, csvFloat(s.Latency.Mean), csvFloat(s.Latency.P50), csvFloat(s.Latency.P95))
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return b.Bytes(), nil
}

// csvMean leaves the cell empty when the metric is unavailable.
func csvMean(s StrategySummary, metric string) string {
	v, ok := s.Mean(metric)
	if !ok {
		return ""
	}
	return csvFloat(v)
}

func csvFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
