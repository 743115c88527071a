package evaluation

import (
	"math"
	"sort"
)

// Summarize aggregates records into one SummaryRecord per strategy, in the
// order of strategies. Strategies present only in records follow in the
// order they first appear. Only successful records contribute to metric
// and latency statistics. Summarize does not modify records.
func Summarize(records []MetricRecord, strategies []string) []SummaryRecord {
	order := make([]string, 0, len(strategies))
	byStrategy := make(map[string][]MetricRecord, len(strategies))
	for _, s := range strategies {
		if _, ok := byStrategy[s]; ok {
			continue
		}
		byStrategy[s] = nil
		order = append(order, s)
	}
	for _, r := range records {
		if _, ok := byStrategy[r.Strategy]; !ok {
			order = append(order, r.Strategy)
		}
		byStrategy[r.Strategy] = append(byStrategy[r.Strategy], r)
	}

	summaries := make([]SummaryRecord, 0, len(order))
	for _, s := range order {
		summaries = append(summaries, summarizeStrategy(s, byStrategy[s]))
	}
	return summaries
}

func summarizeStrategy(strategy string, records []MetricRecord) SummaryRecord {
	sum := SummaryRecord{Strategy: strategy}

	values := make(map[string][]float64)
	var latencies []float64
	for _, r := range records {
		if !r.OK() {
			sum.Failed++
			continue
		}
		sum.Succeeded++
		latencies = append(latencies, r.LatencyMs)
		for name, v := range r.Metrics {
			values[name] = append(values[name], v)
		}
	}

	if sum.Succeeded == 0 {
		sum.NoData = true
		return sum
	}

	sum.Metrics = make(map[string]Stat, len(values))
	for name, vs := range values {
		sum.Metrics[name] = stat(vs)
	}
	latency := latencyStats(latencies)
	sum.Latency = &latency
	return sum
}

func stat(values []float64) Stat {
	s := Stat{Count: len(values), Min: values[0], Max: values[0]}
	total := 0.0
	for _, v := range values {
		total += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = total / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - s.Mean
		variance += d * d
	}
	s.StdDev = math.Sqrt(variance / float64(len(values)))
	return s
}

func latencyStats(latencies []float64) LatencyStats {
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	total := 0.0
	for _, v := range sorted {
		total += v
	}
	return LatencyStats{
		Mean: total / float64(len(sorted)),
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
	}
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
