package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{OnChange: func(string) {}}); err == nil {
		t.Error("expected error without path")
	}
	if _, err := New(Config{Path: "qrels.jsonl"}); err == nil {
		t.Error("expected error without callback")
	}
	if _, err := New(Config{Path: filepath.Join(t.TempDir(), "missing", "qrels.jsonl"), OnChange: func(string) {}}); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "qrels.jsonl")
	if err := os.WriteFile(target, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan string, 10)
	w, err := New(Config{
		Path:       target,
		OnChange:   func(p string) { changed <- p },
		BatchDelay: 20 * time.Millisecond,
		Log:        logger.Discard(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "queries.jsonl"), []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-changed:
		t.Fatalf("unexpected change for %s", p)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(target, []byte("{}\n{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-changed:
		if p != w.Path() {
			t.Errorf("changed path = %q, want %q", p, w.Path())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
