package evaluation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmuvera/muvera-eval/internal/bus"
	"github.com/asmuvera/muvera-eval/internal/dataset"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
)

// stubAdapter answers from a fixed table of ranked doc ids per query.
type stubAdapter struct {
	name    string
	results map[string][]string
	fail    map[string]error
	block   map[string]bool // wait for ctx instead of answering
	delay   time.Duration
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Search(ctx context.Context, q dataset.Query, maxResults int) ([]retrieval.Hit, error) {
	if s.block[q.ID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err := s.fail[q.ID]; err != nil {
		return nil, err
	}
	ids := s.results[q.ID]
	hits := make([]retrieval.Hit, 0, len(ids))
	for i, id := range ids {
		hits = append(hits, retrieval.Hit{DocID: id, Score: float64(len(ids) - i)})
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

type recorderCall struct {
	strategy string
	results  int
	err      error
}

type fakeRecorder struct {
	mu       sync.Mutex
	calls    []recorderCall
	started  int
	finished int
	runErr   error
}

func (f *fakeRecorder) RecordAdapterCall(strategy string, _ time.Duration, results int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recorderCall{strategy, results, err})
}

func (f *fakeRecorder) RunStarted() { f.started++ }

func (f *fakeRecorder) RunFinished(_ time.Duration, err error) {
	f.finished++
	f.runErr = err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (f *fakePublisher) Publish(_ context.Context, topic string, e bus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func testJudgments(t *testing.T) *dataset.Judgments {
	t.Helper()
	j := dataset.NewJudgments()
	require.NoError(t, j.Add("q1", "A", 2))
	require.NoError(t, j.Add("q1", "B", 0))
	require.NoError(t, j.Add("q1", "C", 1))
	require.NoError(t, j.Add("q2", "D", 1))
	return j
}

func testQueries() []dataset.Query {
	return []dataset.Query{
		{ID: "q1", Text: "first"},
		{ID: "q2", Text: "second"},
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Ks = []int{1, 3}
	opts.MaxResults = 3
	opts.CallTimeout = time.Second
	opts.TopHits = 2
	return opts
}

func newTestEvaluator(t *testing.T, opts Options, adapters ...retrieval.Adapter) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(opts, adapters, testJudgments(t), logger.Discard(), nil, nil)
	require.NoError(t, err)
	return e
}

func TestEvaluator_Run(t *testing.T) {
	good := &stubAdapter{name: "good", results: map[string][]string{
		"q1": {"A", "C", "B"},
		"q2": {"D"},
	}}
	bad := &stubAdapter{name: "bad", results: map[string][]string{
		"q1": {"B", "X", "Y"},
		"q2": {"Z"},
	}}

	run, err := newTestEvaluator(t, testOptions(), good, bad).Run(context.Background(), testQueries())
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, []string{"good", "bad"}, run.Strategies)
	assert.Equal(t, 2, run.Queries)
	require.Len(t, run.Records, 4)

	var order []string
	for _, r := range run.Records {
		order = append(order, r.QueryID+"/"+r.Strategy)
	}
	assert.Equal(t, []string{"q1/good", "q1/bad", "q2/good", "q2/bad"}, order)

	first := run.Records[0]
	assert.True(t, first.OK())
	assert.InDelta(t, 1.0, first.Metrics["ndcg@3"], tolerance)
	assert.Equal(t, 3, first.ResultCount)
	assert.Equal(t, []string{"A", "C"}, retrieval.DocIDs(first.TopHits))

	require.Len(t, run.Summaries, 2)
	goodSum, ok := run.Summary("good")
	require.True(t, ok)
	assert.Equal(t, 2, goodSum.Succeeded)
	assert.InDelta(t, 1.0, goodSum.Metrics[MetricMRR].Mean, tolerance)

	badSum, _ := run.Summary("bad")
	assert.InDelta(t, 0.0, badSum.Metrics[MetricMRR].Mean, tolerance)
	assert.Equal(t, 0, run.Failures())
}

func TestEvaluator_FailureIsRecordedAndExcluded(t *testing.T) {
	flaky := &stubAdapter{
		name:    "flaky",
		results: map[string][]string{"q2": {"D"}},
		fail:    map[string]error{"q1": errors.New("connection refused")},
	}
	rec := &fakeRecorder{}

	e, err := NewEvaluator(testOptions(), []retrieval.Adapter{flaky}, testJudgments(t), logger.Discard(), nil, rec)
	require.NoError(t, err)

	run, err := e.Run(context.Background(), testQueries())
	require.NoError(t, err)

	require.Len(t, run.Records, 2)
	failed := run.Records[0]
	assert.False(t, failed.OK())
	assert.Nil(t, failed.Metrics)
	assert.Equal(t, apperrors.CodeAdapter, failed.ErrorCode)
	assert.Contains(t, failed.Error, "connection refused")

	sum, _ := run.Summary("flaky")
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.InDelta(t, 1.0, sum.Metrics[MetricMRR].Mean, tolerance, "failed query must not pull the mean down")
	assert.Equal(t, 1, run.Failures())

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, 1, rec.finished)
	assert.NoError(t, rec.runErr)
	require.Len(t, rec.calls, 2)
	assert.Error(t, rec.calls[0].err)
	assert.Equal(t, 1, rec.calls[1].results)
}

func TestEvaluator_CallTimeout(t *testing.T) {
	slow := &stubAdapter{
		name:    "slow",
		results: map[string][]string{"q2": {"D"}},
		block:   map[string]bool{"q1": true},
	}
	opts := testOptions()
	opts.CallTimeout = 20 * time.Millisecond

	start := time.Now()
	run, err := newTestEvaluator(t, opts, slow).Run(context.Background(), testQueries())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	timedOut := run.Records[0]
	assert.Equal(t, apperrors.CodeTimeout, timedOut.ErrorCode)
	assert.GreaterOrEqual(t, timedOut.LatencyMs, 15.0)
	assert.True(t, run.Records[1].OK())
}

func TestEvaluator_AllFailedIsNoData(t *testing.T) {
	down := &stubAdapter{name: "down", fail: map[string]error{
		"q1": errors.New("down"),
		"q2": errors.New("down"),
	}}

	run, err := newTestEvaluator(t, testOptions(), down).Run(context.Background(), testQueries())
	require.NoError(t, err)

	sum, _ := run.Summary("down")
	assert.True(t, sum.NoData)
	assert.Empty(t, sum.Metrics)
	assert.Equal(t, 2, sum.Failed)
	_, ok := sum.Mean(MetricMRR)
	assert.False(t, ok)
}

func TestEvaluator_DuplicateHitsAreDropped(t *testing.T) {
	dup := &stubAdapter{name: "dup", results: map[string][]string{
		"q1": {"A", "A", "C"},
	}}

	rec, err := newTestEvaluator(t, testOptions(), dup).EvaluateQuery(context.Background(), dup, dataset.Query{ID: "q1", Text: "first"})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ResultCount)
	assert.InDelta(t, 1.0, rec.Metrics["recall@3"], tolerance)
}

func TestEvaluator_UnjudgedQueryScoresZero(t *testing.T) {
	a := &stubAdapter{name: "a", results: map[string][]string{"q9": {"A", "B"}}}

	rec, err := newTestEvaluator(t, testOptions(), a).EvaluateQuery(context.Background(), a, dataset.Query{ID: "q9", Text: "unknown"})
	require.NoError(t, err)
	assert.True(t, rec.OK())
	for name, v := range rec.Metrics {
		assert.Zero(t, v, name)
	}
}

func TestEvaluator_WorkersDeterministic(t *testing.T) {
	var queries []dataset.Query
	results := make(map[string][]string)
	for i := 0; i < 20; i++ {
		id := string(rune('a'+i)) + "q"
		queries = append(queries, dataset.Query{ID: id, Text: id})
		results[id] = []string{"A", "B"}
	}
	one := &stubAdapter{name: "one", results: results, delay: time.Millisecond}
	two := &stubAdapter{name: "two", results: results}

	sequential := testOptions()
	parallel := testOptions()
	parallel.Workers = 8

	seqRun, err := newTestEvaluator(t, sequential, one, two).Run(context.Background(), queries)
	require.NoError(t, err)
	parRun, err := newTestEvaluator(t, parallel, one, two).Run(context.Background(), queries)
	require.NoError(t, err)

	require.Len(t, parRun.Records, 40)
	for i := range seqRun.Records {
		assert.Equal(t, seqRun.Records[i].QueryID, parRun.Records[i].QueryID)
		assert.Equal(t, seqRun.Records[i].Strategy, parRun.Records[i].Strategy)
		assert.Equal(t, seqRun.Records[i].Metrics, parRun.Records[i].Metrics)
	}
	assert.Equal(t, "aq", parRun.Records[0].QueryID)
	assert.Equal(t, "two", parRun.Records[1].Strategy)
}

func TestEvaluator_RunContextCancelled(t *testing.T) {
	a := &stubAdapter{name: "a", results: map[string][]string{"q1": {"A"}}}
	rec := &fakeRecorder{}
	e, err := NewEvaluator(testOptions(), []retrieval.Adapter{a}, nil, logger.Discard(), nil, rec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := e.Run(ctx, testQueries())
	assert.Nil(t, run)
	require.Error(t, err)
	assert.Error(t, rec.runErr)
}

func TestEvaluator_PublishesProgress(t *testing.T) {
	a := &stubAdapter{name: "a", results: map[string][]string{"q1": {"A"}, "q2": {"D"}}}
	pub := &fakePublisher{}

	e, err := NewEvaluator(testOptions(), []retrieval.Adapter{a}, testJudgments(t), logger.Discard(), pub, nil)
	require.NoError(t, err)

	run, err := e.Run(context.Background(), testQueries())
	require.NoError(t, err)

	assert.Equal(t, []string{
		bus.TopicRunStarted,
		bus.TopicQueryCompleted,
		bus.TopicQueryCompleted,
		bus.TopicRunCompleted,
	}, pub.topics())

	for _, ev := range pub.events {
		assert.Equal(t, run.ID, ev.CorrelationID)
	}
	done, err := bus.DecodePayload[bus.RunPayload](pub.events[3])
	require.NoError(t, err)
	assert.Equal(t, 2, done.Records)

	progress, err := bus.DecodePayload[bus.QueryCompletedPayload](pub.events[2])
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Completed)
	assert.Equal(t, 2, progress.Total)
}

func TestNewEvaluator_Validation(t *testing.T) {
	a := &stubAdapter{name: "a"}

	tests := []struct {
		name     string
		opts     func(*Options)
		adapters []retrieval.Adapter
	}{
		{"no ks", func(o *Options) { o.Ks = nil }, []retrieval.Adapter{a}},
		{"zero k", func(o *Options) { o.Ks = []int{0} }, []retrieval.Adapter{a}},
		{"max results below k", func(o *Options) { o.Ks = []int{20} }, []retrieval.Adapter{a}},
		{"no timeout", func(o *Options) { o.CallTimeout = 0 }, []retrieval.Adapter{a}},
		{"no adapters", func(o *Options) {}, nil},
		{"duplicate adapter", func(o *Options) {}, []retrieval.Adapter{a, a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.opts(&opts)
			_, err := NewEvaluator(opts, tt.adapters, nil, nil, nil, nil)
			assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err), "got %v", err)
		})
	}
}
