package evaluation

import (
	"fmt"
	"math"
	"sort"

	"github.com/asmuvera/muvera-eval/internal/dataset"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// Canonical metric names. Cutoff metrics are suffixed with "@k".
const (
	MetricNDCG      = "ndcg"
	MetricRecall    = "recall"
	MetricPrecision = "precision"
	MetricMRR       = "mrr"
	MetricMAP       = "map"
)

// DefaultRelevanceThreshold is the minimum grade counted as relevant by the
// binary metrics.
const DefaultRelevanceThreshold = 1

// Metrics maps canonical metric names to values in [0, 1].
type Metrics map[string]float64

// MetricName returns the canonical name of a cutoff metric, e.g. "ndcg@10".
func MetricName(metric string, k int) string {
	return fmt.Sprintf("%s@%d", metric, k)
}

// MetricNames lists the names Compute produces for ks, in report order.
func MetricNames(ks []int) []string {
	names := make([]string, 0, 3*len(ks)+2)
	for _, metric := range []string{MetricNDCG, MetricRecall, MetricPrecision} {
		for _, k := range ks {
			names = append(names, MetricName(metric, k))
		}
	}
	return append(names, MetricMRR, MetricMAP)
}

// Relevances maps a ranked list of document ids to their grades.
// Unjudged documents get grade 0.
func Relevances(docIDs []string, qrels dataset.QueryJudgments) []int {
	relevances := make([]int, len(docIDs))
	for i, id := range docIDs {
		relevances[i] = qrels.Grade(id)
	}
	return relevances
}

// IdealGrades returns the judged grades sorted descending. Equal grades keep
// their load order.
func IdealGrades(qrels dataset.QueryJudgments) []int {
	ideal := qrels.Grades()
	sort.SliceStable(ideal, func(i, j int) bool { return ideal[i] > ideal[j] })
	return ideal
}

// dcg sums grade / log2(rank+1) over the first k grades.
func dcg(grades []int, k int) float64 {
	if k > len(grades) {
		k = len(grades)
	}
	sum := 0.0
	for i := 0; i < k; i++ {
		sum += float64(grades[i]) / math.Log2(float64(i+2))
	}
	return sum
}

// NDCG calculates Normalized Discounted Cumulative Gain at K.
// ideal must hold the query's judged grades in ideal order.
func NDCG(relevances, ideal []int, k int) float64 {
	if k <= 0 {
		return 0
	}
	idcg := dcg(ideal, k)
	if idcg == 0 {
		return 0
	}
	return dcg(relevances, k) / idcg
}

// Recall calculates Recall at K against the number of relevant judged docs.
func Recall(relevances []int, totalRelevant, k, threshold int) float64 {
	if totalRelevant <= 0 {
		return 0
	}
	return float64(countRelevant(relevances, k, threshold)) / float64(totalRelevant)
}

// Precision calculates Precision at K. Positions past the end of the list
// count as non-relevant.
func Precision(relevances []int, k, threshold int) float64 {
	if k <= 0 {
		return 0
	}
	return float64(countRelevant(relevances, k, threshold)) / float64(k)
}

func countRelevant(relevances []int, k, threshold int) int {
	if k > len(relevances) {
		k = len(relevances)
	}
	n := 0
	for i := 0; i < k; i++ {
		if relevances[i] >= threshold {
			n++
		}
	}
	return n
}

// MRR calculates the reciprocal rank of the first relevant document.
func MRR(relevances []int, threshold int) float64 {
	for i, r := range relevances {
		if r >= threshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision, normalised by the number of
// relevant judged docs so that relevant docs never retrieved count as misses.
func AveragePrecision(relevances []int, totalRelevant, threshold int) float64 {
	if totalRelevant <= 0 {
		return 0
	}

	relevant := 0
	sumPrecision := 0.0
	for i, r := range relevances {
		if r >= threshold {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}

	return sumPrecision / float64(totalRelevant)
}

// Compute scores a ranked list of document ids against a query's judgments.
// A value outside [0, 1] is a defect and is returned as a METRIC_ERROR.
func Compute(docIDs []string, qrels dataset.QueryJudgments, ks []int, threshold int) (Metrics, error) {
	if threshold < 1 {
		threshold = DefaultRelevanceThreshold
	}

	relevances := Relevances(docIDs, qrels)
	ideal := IdealGrades(qrels)
	totalRelevant := qrels.RelevantCount(threshold)

	m := make(Metrics, 3*len(ks)+2)
	for _, k := range ks {
		m[MetricName(MetricNDCG, k)] = NDCG(relevances, ideal, k)
		m[MetricName(MetricRecall, k)] = Recall(relevances, totalRelevant, k, threshold)
		m[MetricName(MetricPrecision, k)] = Precision(relevances, k, threshold)
	}
	m[MetricMRR] = MRR(relevances, threshold)
	m[MetricMAP] = AveragePrecision(relevances, totalRelevant, threshold)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that every value is a number in [0, 1].
func (m Metrics) Validate() error {
	for name, v := range m {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return apperrors.MetricError(name, v)
		}
	}
	return nil
}
