package bus

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
)

func TestEventLogger(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "events", "events.jsonl")

	t.Run("NewEventLogger_Enabled", func(t *testing.T) {
		l, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("Expected log file to be created: %v", err)
		}
	})

	t.Run("Log_Disabled", func(t *testing.T) {
		l, err := NewEventLogger(filepath.Join(tempDir, "disabled.jsonl"), false)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		if err := l.Log("test.topic", Event{ID: "x"}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(tempDir, "disabled.jsonl")); !os.IsNotExist(err) {
			t.Error("disabled logger should not create a file")
		}
		if _, err := l.GetEvents(time.Time{}, "", 0); err == nil {
			t.Error("GetEvents on a disabled logger should fail")
		}
	})

	t.Run("GetEvents", func(t *testing.T) {
		os.Remove(logPath)

		l, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		for i := 0; i < 5; i++ {
			run := "run-a"
			if i%2 == 1 {
				run = "run-b"
			}
			if err := l.Log(TopicQueryCompleted, NewEvent("query", run, i)); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}

		since := time.Now().Add(-time.Minute)

		events, err := l.GetEvents(since, "", 0)
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != 5 {
			t.Errorf("Expected 5 events, got %d", len(events))
		}

		events, _ = l.GetEvents(since, "", 3)
		if len(events) != 3 {
			t.Errorf("Expected 3 events (limit), got %d", len(events))
		}

		events, _ = l.GetEvents(since, "run-b", 0)
		if len(events) != 2 {
			t.Errorf("Expected 2 events for run-b, got %d", len(events))
		}

		events, _ = l.GetEvents(time.Now().Add(time.Minute), "", 0)
		if len(events) != 0 {
			t.Errorf("Expected no events in the future, got %d", len(events))
		}
	})

	t.Run("Replay", func(t *testing.T) {
		os.Remove(logPath)

		l, err := NewEventLogger(logPath, true)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		defer l.Close()

		for i := 0; i < 3; i++ {
			if err := l.Log(TopicQueryCompleted, NewEvent("query", "run-r", i)); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}
		l.Log(TopicQueryCompleted, NewEvent("query", "other", 0))

		replayBus := NewMemoryBus(logger.Discard())

		var count atomic.Int32
		ctx := context.Background()
		replayBus.Subscribe(ctx, TopicQueryCompleted, func(ctx context.Context, event Event) error {
			count.Add(1)
			return nil
		})

		if err := l.Replay(ctx, replayBus, time.Time{}, "run-r"); err != nil {
			t.Fatalf("Replay failed: %v", err)
		}
		replayBus.Close() // drains handlers

		if got := count.Load(); got != 3 {
			t.Errorf("Expected 3 replayed events, got %d", got)
		}
	})
}

func TestOpenEventLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.jsonl")

	events, err := OpenEventLog(logPath).GetEvents(time.Time{}, "", 0)
	if err != nil {
		t.Fatalf("GetEvents on a missing file failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events, got %d", len(events))
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("reading should not create the log file")
	}

	if err := OpenEventLog(logPath).Log(TopicRunStarted, Event{ID: "x"}); err == nil {
		t.Error("Log on a read-only event log should fail")
	}
}

func TestLoggedBus(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logged_bus.jsonl")

	innerBus := NewMemoryBus(logger.Discard())

	l, err := NewEventLogger(logPath, true)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	loggedBus := NewLoggedBus(innerBus, l, logger.Discard())
	defer loggedBus.Close()

	var delivered atomic.Int32
	ctx := context.Background()
	loggedBus.Subscribe(ctx, TopicRunStarted, func(ctx context.Context, event Event) error {
		delivered.Add(1)
		return nil
	})

	if err := loggedBus.Publish(ctx, TopicRunStarted, Event{ID: "test-pub", CorrelationID: "r"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	innerBus.DrainTimeout(time.Second)

	events, err := OpenEventLog(logPath).GetEvents(time.Now().Add(-time.Minute), "", 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 logged event, got %d", len(events))
	}
	if events[0].Event.ID != "test-pub" || events[0].Topic != TopicRunStarted {
		t.Errorf("logged event = %+v", events[0])
	}
	if delivered.Load() != 1 {
		t.Errorf("delivered = %d, want 1", delivered.Load())
	}
}
