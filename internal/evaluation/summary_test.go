package evaluation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(strategy string, latency float64, metrics Metrics) MetricRecord {
	return MetricRecord{Strategy: strategy, LatencyMs: latency, Metrics: metrics}
}

func failedRecord(strategy string) MetricRecord {
	err := errors.New("boom")
	return MetricRecord{Strategy: strategy, LatencyMs: 999, Err: err, Error: err.Error()}
}

func TestSummarize_MeanAndStdDev(t *testing.T) {
	records := []MetricRecord{
		record("s", 10, Metrics{MetricMRR: 1.0}),
		record("s", 20, Metrics{MetricMRR: 0.5}),
		failedRecord("s"),
		record("s", 30, Metrics{MetricMRR: 0.0}),
	}

	sums := Summarize(records, []string{"s"})
	require.Len(t, sums, 1)
	s := sums[0]

	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.False(t, s.NoData)

	mrr := s.Metrics[MetricMRR]
	assert.InDelta(t, 0.5, mrr.Mean, tolerance)
	assert.InDelta(t, math.Sqrt(1.0/6.0), mrr.StdDev, tolerance)
	assert.Equal(t, 0.0, mrr.Min)
	assert.Equal(t, 1.0, mrr.Max)
	assert.Equal(t, 3, mrr.Count)

	require.NotNil(t, s.Latency)
	assert.InDelta(t, 20.0, s.Latency.Mean, tolerance)
	assert.Equal(t, 20.0, s.Latency.P50)
	assert.Equal(t, 30.0, s.Latency.P95)
	assert.Equal(t, 10.0, s.Latency.Min)
	assert.Equal(t, 30.0, s.Latency.Max, "failed call latency is excluded")
}

func TestSummarize_Pure(t *testing.T) {
	records := []MetricRecord{
		record("b", 3, Metrics{MetricMAP: 0.25, "ndcg@10": 0.5}),
		record("a", 1, Metrics{MetricMAP: 0.75, "ndcg@10": 1}),
		record("b", 2, Metrics{MetricMAP: 0.5, "ndcg@10": 0.1}),
	}
	snapshot := append([]MetricRecord(nil), records...)

	first := Summarize(records, []string{"a", "b"})
	second := Summarize(records, []string{"a", "b"})

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, records)
}

func TestSummarize_Order(t *testing.T) {
	records := []MetricRecord{
		record("late", 1, Metrics{MetricMRR: 1}),
		record("b", 1, Metrics{MetricMRR: 1}),
	}

	sums := Summarize(records, []string{"a", "b"})
	require.Len(t, sums, 3)
	assert.Equal(t, "a", sums[0].Strategy)
	assert.True(t, sums[0].NoData, "listed strategy without records has no data")
	assert.Equal(t, "b", sums[1].Strategy)
	assert.Equal(t, "late", sums[2].Strategy)
}

func TestSummarize_NoData(t *testing.T) {
	sums := Summarize([]MetricRecord{failedRecord("x"), failedRecord("x")}, nil)
	require.Len(t, sums, 1)
	assert.True(t, sums[0].NoData)
	assert.Nil(t, sums[0].Metrics)
	assert.Nil(t, sums[0].Latency, "no successful call means no latency figures")
	assert.Equal(t, 2, sums[0].Failed)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 5.0, percentile(sorted, 50))
	assert.Equal(t, 10.0, percentile(sorted, 95))
	assert.Equal(t, 1.0, percentile(sorted, 0))
	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 95))
}
