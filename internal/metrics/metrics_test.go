package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/asmuvera/muvera-eval/internal/bus"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/qdrant"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter", "A test counter", nil)

	if c.Value() != 0 {
		t.Errorf("expected initial value 0, got %d", c.Value())
	}

	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Errorf("expected value 6, got %d", c.Value())
	}

	// Counters can't decrease
	c.Add(-10)
	if c.Value() != 6 {
		t.Errorf("expected value 6 after Add(-10), got %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "A test gauge", nil)

	g.Set(42.5)
	if g.Value() != 42.5 {
		t.Errorf("expected value 42.5, got %f", g.Value())
	}

	g.Inc()
	g.Dec()
	g.Add(-0.5)
	if g.Value() != 42 {
		t.Errorf("expected value 42, got %f", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_histogram", "A test histogram", []float64{10, 1, 5})

	for _, v := range []float64{0.5, 1, 3, 7, 20} {
		h.Observe(v)
	}

	if h.Count() != 5 {
		t.Errorf("expected count 5, got %d", h.Count())
	}
	if h.Sum() != 31.5 {
		t.Errorf("expected sum 31.5, got %f", h.Sum())
	}

	buckets := h.Buckets()
	if buckets[0] != 1 || buckets[2] != 10 {
		t.Errorf("buckets should be sorted, got %v", buckets)
	}

	// le=1: 0.5, 1   le=5: +3   le=10: +7   +Inf: +20
	want := []int64{2, 3, 4, 5}
	got := h.BucketCounts()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bucket %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestVecs(t *testing.T) {
	cv := NewCounterVec("requests", "Requests", []string{"strategy"})
	cv.WithLabels("single_vector").Inc()
	cv.WithLabels("single_vector").Inc()
	cv.WithLabels("multi_vector").Inc()

	all := cv.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 counters, got %d", len(all))
	}
	if all[0].Labels()["strategy"] != "multi_vector" {
		t.Errorf("GetAll should be ordered by labels, got %v first", all[0].Labels())
	}
	if cv.WithLabels("single_vector").Value() != 2 {
		t.Errorf("expected single_vector = 2")
	}

	hv := NewHistogramVec("latency", "Latency", []string{"strategy"}, nil)
	hv.WithLabels("a").Observe(3)
	if hv.WithLabels("a").Labels()["strategy"] != "a" {
		t.Error("histogram child should carry its labels")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on wrong label count")
		}
	}()
	cv.WithLabels("a", "b")
}

func TestRecordAdapterCall(t *testing.T) {
	m := New()

	m.RecordAdapterCall("hybrid", 12*time.Millisecond, 10, nil)
	m.RecordAdapterCall("hybrid", 30*time.Millisecond, 0, apperrors.TimeoutError("vespa search", nil))
	m.RecordAdapterCall("hybrid", time.Millisecond, 0, errors.New("plain"))

	if got := m.AdapterRequests.WithLabels("hybrid").Value(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if got := m.AdapterErrors.WithLabels("hybrid", apperrors.CodeTimeout).Value(); got != 1 {
		t.Errorf("timeout errors = %d, want 1", got)
	}
	if got := m.AdapterErrors.WithLabels("hybrid", apperrors.CodeAdapter).Value(); got != 1 {
		t.Errorf("adapter errors = %d, want 1", got)
	}
	if got := m.AdapterLatency.WithLabels("hybrid").Count(); got != 3 {
		t.Errorf("latency observations = %d, want 3", got)
	}
	if got := m.AdapterResults.WithLabels("hybrid").Count(); got != 1 {
		t.Errorf("result observations = %d, want 1", got)
	}
}

func TestRunLifecycle(t *testing.T) {
	m := New()

	m.RunStarted()
	if m.ActiveRuns.Value() != 1 {
		t.Errorf("active runs = %f, want 1", m.ActiveRuns.Value())
	}
	m.RunFinished(2*time.Second, nil)
	m.RunStarted()
	m.RunFinished(time.Second, errors.New("boom"))

	if m.ActiveRuns.Value() != 0 {
		t.Errorf("active runs = %f, want 0", m.ActiveRuns.Value())
	}
	if m.RunsTotal.WithLabels("success").Value() != 1 || m.RunsTotal.WithLabels("error").Value() != 1 {
		t.Error("expected one successful and one failed run")
	}
}

func TestCacheMetrics(t *testing.T) {
	m := New()
	m.RecordCacheHit("memory")
	m.RecordCacheMiss("memory")
	m.RecordCacheMiss("memory")
	m.UpdateCacheSize("memory", 7)

	if m.CacheHits.WithLabels("memory").Value() != 1 {
		t.Error("expected 1 hit")
	}
	if m.CacheMisses.WithLabels("memory").Value() != 2 {
		t.Error("expected 2 misses")
	}
	if m.CacheSize.WithLabels("memory").Value() != 7 {
		t.Error("expected size 7")
	}
}

func TestPrometheusFormat(t *testing.T) {
	m := New()
	m.RecordAdapterCall("multi_vector", 5*time.Millisecond, 3, nil)
	m.RecordBusPublish(bus.TopicQueryCompleted, time.Millisecond, nil)
	m.SetEngineUp("vespa", true)

	out := m.PrometheusFormat()

	for _, want := range []string{
		"# TYPE muvera_adapter_requests_total counter",
		`muvera_adapter_requests_total{strategy="multi_vector"} 1`,
		`muvera_adapter_latency_ms_bucket{le="5",strategy="multi_vector"} 1`,
		`muvera_adapter_latency_ms_bucket{le="+Inf",strategy="multi_vector"} 1`,
		`muvera_adapter_latency_ms_count{strategy="multi_vector"} 1`,
		`muvera_bus_events_published_total{topic="evaluation.query.completed"} 1`,
		`muvera_engine_up{engine="vespa"} 1`,
		"# TYPE muvera_goroutines gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if strings.Contains(out, "muvera_adapter_errors_total") {
		t.Error("empty vectors should not be exported")
	}
}

func TestEscapeString(t *testing.T) {
	if got := escapeString("a\"b\\c\nd"); got != `a\"b\\c\nd` {
		t.Errorf("escapeString() = %q", got)
	}
}

func TestEventSubscriber(t *testing.T) {
	m := New()
	b := bus.NewMemoryBus(logger.Discard())

	if err := NewEventSubscriber(m, b).SubscribeToEvents(context.Background()); err != nil {
		t.Fatalf("SubscribeToEvents() error = %v", err)
	}

	ctx := context.Background()
	b.Publish(ctx, bus.TopicQueryCompleted, bus.NewEvent(bus.TopicQueryCompleted, "r", bus.QueryCompletedPayload{QueryID: "q1"}))
	b.Publish(ctx, bus.TopicQueryCompleted, bus.NewEvent(bus.TopicQueryCompleted, "r", bus.QueryCompletedPayload{QueryID: "q2"}))
	b.Publish(ctx, bus.TopicRunCompleted, bus.NewEvent(bus.TopicRunCompleted, "r", bus.RunPayload{RunID: "r", Failures: 3}))
	b.Close()

	if got := m.QueriesEvaluated.Value(); got != 2 {
		t.Errorf("queries evaluated = %d, want 2", got)
	}
	if got := m.RunFailures.Value(); got != 3 {
		t.Errorf("run failures = %d, want 3", got)
	}
}

type fakeVespa struct{ err error }

func (f fakeVespa) Status(context.Context) error { return f.err }

type fakeQdrant struct{}

func (fakeQdrant) HealthCheck(context.Context) error { return nil }

func (fakeQdrant) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	return &qdrant.CollectionInfo{Name: name, PointsCount: 1234, Status: "green"}, nil
}

func TestCollector(t *testing.T) {
	m := New()
	c := NewCollector(m, fakeVespa{err: errors.New("down")}, fakeQdrant{}, "docs", logger.Discard())

	stats := c.Collect(context.Background())

	if stats["vespa_up"] != false || stats["qdrant_up"] != true {
		t.Errorf("engine state = %v / %v", stats["vespa_up"], stats["qdrant_up"])
	}
	if m.EngineUp.WithLabels("vespa").Value() != 0 || m.EngineUp.WithLabels("qdrant").Value() != 1 {
		t.Error("engine gauges not updated")
	}
	if m.EnginePoints.WithLabels("qdrant", "docs").Value() != 1234 {
		t.Error("points gauge not updated")
	}

	summary := c.Summary(context.Background())
	if !strings.Contains(summary, "vespa:") || !strings.Contains(summary, "1.2k") {
		t.Errorf("unexpected summary:\n%s", summary)
	}
}

func TestCollector_Start(t *testing.T) {
	m := New()
	c := NewCollector(m, fakeVespa{}, nil, "", logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if m.EngineUp.WithLabels("vespa").Value() != 1 {
		t.Error("expected vespa to be reported up")
	}
}

func TestFormatHelpers(t *testing.T) {
	if formatBytes(512) != "512 B" || formatBytes(2048) != "2.0 KiB" {
		t.Errorf("formatBytes: %s, %s", formatBytes(512), formatBytes(2048))
	}
	if formatDuration(59) != "59s" || formatDuration(125) != "2m 5s" || formatDuration(7260) != "2h 1m" {
		t.Error("formatDuration mismatch")
	}
	if formatInt(999) != "999" || formatInt(1500000) != "1.5M" {
		t.Error("formatInt mismatch")
	}
}
