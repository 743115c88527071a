package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/asmuvera/muvera-eval/internal/dataset"
)

func testPassages() []dataset.Passage {
	return []dataset.Passage{
		{ID: "0", Text: "The presence of communication amid scientific minds was equally important to the success of the Manhattan Project."},
		{ID: "1", Text: "The Manhattan Project and its atomic bomb helped bring an end to World War II."},
		{ID: "2", Title: "Nuclear energy", Text: "Peaceful uses of atomic energy include power generation."},
	}
}

func TestIndex_SearchFindsContent(t *testing.T) {
	idx, err := NewIndex(testPassages())
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer func() {
		_ = idx.Close()
	}()

	results, err := idx.Search(context.Background(), "atomic bomb", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results for \"atomic bomb\"")
	}
	if results[0].ID != "1" {
		t.Errorf("first result ID = %q, want 1", results[0].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in score order at %d", i)
		}
	}
}

func TestIndex_SearchFindsTitle(t *testing.T) {
	idx, err := NewIndex(testPassages())
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer func() {
		_ = idx.Close()
	}()

	results, err := idx.Search(context.Background(), "nuclear", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "2" {
		t.Errorf("Search(nuclear) = %v, want passage 2", results)
	}
}

func TestIndex_Limit(t *testing.T) {
	idx, err := NewIndex(testPassages())
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer func() {
		_ = idx.Close()
	}()

	results, err := idx.Search(context.Background(), "the manhattan project atomic", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("len(results) = %d, want 1", len(results))
	}

	n, err := idx.Count()
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3", n, err)
	}
}

func TestIndex_NoMatch(t *testing.T) {
	idx, err := NewIndex(testPassages())
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer func() {
		_ = idx.Close()
	}()

	results, err := idx.Search(context.Background(), "zebra", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestLoadIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passages.jsonl")
	content := `{"id": "10", "title": "", "content": "androgen receptor definition"}
{"id": "11", "title": "", "content": "paula deen brother"}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	idx, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	defer func() {
		_ = idx.Close()
	}()

	results, err := idx.Search(context.Background(), "receptor", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "10" {
		t.Errorf("Search(receptor) = %v, want passage 10", results)
	}
}
